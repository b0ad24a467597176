package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Amund211/fetchlight/internal/adapters/cache"
	"github.com/Amund211/fetchlight/internal/adapters/decoder"
	"github.com/Amund211/fetchlight/internal/adapters/transport"
	"github.com/Amund211/fetchlight/internal/app"
	"github.com/Amund211/fetchlight/internal/config"
	"github.com/Amund211/fetchlight/internal/dispatch"
	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/Amund211/fetchlight/internal/ports"
	"github.com/Amund211/fetchlight/internal/ratelimiting"
	"github.com/Amund211/fetchlight/internal/reporting"
	"github.com/Amund211/fetchlight/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "golang.org/x/crypto/x509roots/fallback"
)

func main() {
	ctx := context.Background()

	instanceID := uuid.New().String()
	logger := logging.NewRootLogger(os.Stdout, slog.LevelInfo).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	if config.EnableTelemetry() {
		shutdown, err := telemetry.SetupOTelSDK(ctx, "fetchlight", instanceID)
		if err != nil {
			fail("Failed to initialize telemetry", "error", err.Error())
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down telemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized telemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	// Be gentle with the image hosts
	limiter := ratelimiting.NewWindowLimitRequestLimiter(600, 5*time.Minute, time.Now, time.After)

	httpTransport, err := transport.NewHTTPTransport(httpClient, limiter, config.MaxImageBytes())
	if err != nil {
		fail("Failed to initialize HTTP transport", "error", err.Error())
	}

	imageClient, err := app.NewImageClient(
		httpTransport,
		decoder.NewImageDecoder(config.MaxImagePixels()),
		cache.NewTTLCache[*domain.Image](),
		dispatch.NewGateway(),
		time.Now,
	)
	if err != nil {
		fail("Failed to initialize image client", "error", err.Error())
	}
	logger.Info("Initialized image client")

	getImage := app.BuildGetImage(imageClient)

	allowedOrigins, err := ports.NewDomainSuffixes(config.AllowedOrigins()...)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	mux := http.NewServeMux()

	mux.HandleFunc(
		"OPTIONS /v1/image/meta",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/image/meta",
		ports.MakeImageMetaHandler(
			getImage,
			config.AllowedImageHosts(),
			allowedOrigins,
			logger.With("port", "imagemeta"),
			sentryMiddleware,
		),
	)

	logger.Info("Init complete")
	err = http.ListenAndServe(fmt.Sprintf(":%s", config.Port()), otelhttp.NewHandler(mux, "fetchlight"))
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("Server shutdown")
	} else {
		fail("Server error", "error", err.Error())
	}
}
