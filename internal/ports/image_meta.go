package ports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Amund211/fetchlight/internal/app"
	"github.com/Amund211/fetchlight/internal/constants"
	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/Amund211/fetchlight/internal/ratelimiting"
	"github.com/Amund211/fetchlight/internal/reporting"
	"github.com/goccy/go-json"
)

type imageMetaResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Format  string `json:"format,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// validateImageURL checks that rawURL is an absolute http(s) URL on one of allowedHosts.
//
// allowedHosts are host suffixes; an empty list allows any host.
func validateImageURL(rawURL string, allowedHosts []string) error {
	if len(rawURL) == 0 || len(rawURL) > constants.MAX_URL_LENGTH {
		return fmt.Errorf("%w: invalid url length", domain.ErrInvalidURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme", domain.ErrInvalidURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", domain.ErrInvalidURL)
	}

	if len(allowedHosts) == 0 {
		return nil
	}

	for _, allowed := range allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}

	return fmt.Errorf("%w: host not allowed", domain.ErrInvalidURL)
}

func MakeImageMetaHandler(
	getImage app.GetImage,
	allowedImageHosts []string,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware Middleware,
) http.HandlerFunc {
	// The limiters live as long as the handler, which lives as long as the process
	ipTokenBuckets, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(4),
		ratelimiting.BurstSize(240),
	)
	// NOTE: Rate limiting based on user controlled value
	userIDTokenBuckets, _ := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(1),
		ratelimiting.BurstSize(60),
	)
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(ipTokenBuckets, ratelimiting.IPKeyFunc)
	userIDRateLimiter := ratelimiting.NewRequestBasedRateLimiter(userIDTokenBuckets, ratelimiting.UserIDKeyFunc)

	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(rootLogger),
		buildMetricsMiddleware(),
		sentryMiddleware,
		BuildCORSMiddleware(allowedOrigins),
		NewRateLimitMiddleware(ipRateLimiter),
		NewRateLimitMiddleware(userIDRateLimiter),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		imageURL := r.URL.Query().Get("url")

		writeResponse := func(ctx context.Context, resp imageMetaResponse, statusCode int) {
			data, err := json.Marshal(resp)
			if err != nil {
				reporting.Report(ctx, fmt.Errorf("failed to marshal response: %w", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusCode)
			w.Write(data)
		}

		handleError := func(ctx context.Context, cause string, statusCode int) {
			writeResponse(ctx, imageMetaResponse{Success: false, Cause: cause}, statusCode)
		}

		if err := validateImageURL(imageURL, allowedImageHosts); err != nil {
			logging.FromContext(ctx).InfoContext(ctx, "Rejected image url", "error", err.Error())
			handleError(ctx, "invalid url", http.StatusBadRequest)
			return
		}

		ctx = reporting.SetImageURLInContext(ctx, imageURL)

		image, err := getImage(ctx, imageURL)
		switch {
		case errors.Is(err, domain.ErrTemporarilyUnavailable):
			handleError(ctx, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		case errors.Is(err, domain.ErrDecodeFailure):
			handleError(ctx, "unsupported image", http.StatusUnprocessableEntity)
			return
		case errors.Is(err, domain.ErrTransportFailure):
			handleError(ctx, "could not fetch image", http.StatusBadGateway)
			return
		case errors.Is(err, context.Canceled):
			// The client went away
			return
		case err != nil:
			reporting.Report(ctx, fmt.Errorf("unexpected error from getImage: %w", err))
			handleError(ctx, "internal server error", http.StatusInternalServerError)
			return
		}

		writeResponse(ctx, imageMetaResponse{
			Success: true,
			URL:     image.URL,
			Format:  image.Format,
			Width:   image.Width(),
			Height:  image.Height(),
			Bytes:   image.Size,
		}, http.StatusOK)
	}

	return middleware(handler)
}
