package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Amund211/fetchlight/internal/config"
	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

var errMissingSentryDSN = errors.New("missing sentry DSN outside development")

var urlPathRx = regexp.MustCompile(`(https?://[^/\s"?#]+)[/?#][^\s"]*`)
var ipv6HostRx = regexp.MustCompile(`\[:{0,2}([0-9a-f]{0,4}:?){1,8}\]:\d+`)
var ipv4HostRx = regexp.MustCompile(`\b(\d{1,3}\.){3}\d{1,3}:\d+\b`)

// Strip the parts of an error message that vary between otherwise identical errors
func sanitizeError(err string) string {
	err = urlPathRx.ReplaceAllString(err, "$1/<path>")
	err = ipv6HostRx.ReplaceAllString(err, "<host>")
	err = ipv4HostRx.ReplaceAllString(err, "<host>")
	return err
}

// Report logs err and sends it to Sentry along with what is known about the request
func Report(ctx context.Context, err error) {
	if err == nil {
		err = errors.New("No error provided")
	}

	meta := metaFromContext(ctx)
	logger := logging.FromContext(ctx)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		logger.WarnContext(ctx, "Failed to get Sentry hub from context", "error", err.Error(), "imageURL", meta.imageURL)
		return
	}

	logger.ErrorContext(ctx, "Reporting error to Sentry", "error", err.Error(), "imageURL", meta.imageURL)

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(meta.tags())
		if meta.imageURL != "" {
			scope.SetExtra("imageURL", meta.imageURL)
		}
		if meta.userID != "" {
			scope.SetUser(sentry.User{
				ID: meta.userID,
			})
		}
		if !meta.startedAt.IsZero() {
			scope.SetExtra("secondsSinceStart", time.Since(meta.startedAt).Seconds())
		}

		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

// AddMetaMiddleware records the request in the context for Report
func AddMetaMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.UserAgent()
		if userAgent == "" {
			userAgent = "<missing>"
		}

		imageHost := imageHostOf(r.URL.Query().Get("url"))
		if imageHost == "" {
			imageHost = "<missing>"
		}

		ctx := setRequestInContext(
			r.Context(),
			r.Header.Get("X-User-Id"),
			userAgent,
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			imageHost,
			time.Now(),
		)

		next(w, r.WithContext(ctx))
	}
}

func environmentName(config config.Config) string {
	switch {
	case config.IsProduction():
		return "production"
	case config.IsStaging():
		return "staging"
	default:
		return "development"
	}
}

func InitSentryMiddleware(sentryDSN string, environment string) (func(http.HandlerFunc) http.HandlerFunc, func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		Environment:      environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0 / 100.0,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	// Repanic so otelhttp and net/http still see the panic after it is captured
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	middleware := func(next http.HandlerFunc) http.HandlerFunc {
		return sentryHandler.HandleFunc(AddMetaMiddleware(next))
	}

	flush := func() {
		sentry.Flush(5 * time.Second)
	}

	return middleware, flush, nil
}

// NewSentryMiddlewareOrMock only reports to Sentry when a DSN is configured.
//
// Without a DSN, Report only logs. This is only allowed in development.
func NewSentryMiddlewareOrMock(config config.Config) (func(http.HandlerFunc) http.HandlerFunc, func(), error) {
	if config.SentryDSN() != "" {
		return InitSentryMiddleware(config.SentryDSN(), environmentName(config))
	}

	if !config.IsDevelopment() {
		return nil, nil, fmt.Errorf("%w: SENTRY_DSN", errMissingSentryDSN)
	}

	return AddMetaMiddleware, func() {}, nil
}
