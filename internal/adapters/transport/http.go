package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Amund211/fetchlight/internal/constants"
	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/logging"
	"github.com/Amund211/fetchlight/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const getImageMaxOperationTime = 10 * time.Second

var errBodyTooLarge = errors.New("response body too large")

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type RequestLimiter interface {
	Limit(ctx context.Context, maxOperationTime time.Duration, operation func()) bool
}

type httpTransportMetricsCollection struct {
	requestCount metric.Int64Counter
}

func setupHTTPTransportMetrics(meter metric.Meter) (httpTransportMetricsCollection, error) {
	requestCount, err := meter.Int64Counter("transport/http/request_count")
	if err != nil {
		return httpTransportMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	return httpTransportMetricsCollection{
		requestCount: requestCount,
	}, nil
}

type httpHandle struct {
	cancel context.CancelFunc
}

func (h *httpHandle) Cancel() {
	h.cancel()
}

type httpTransport struct {
	httpClient   HttpClient
	limiter      RequestLimiter
	maxBodyBytes int64

	metrics httpTransportMetricsCollection
	tracer  trace.Tracer
}

func NewHTTPTransport(httpClient HttpClient, limiter RequestLimiter, maxBodyBytes int64) (*httpTransport, error) {
	return newHTTPTransport(httpClient, limiter, maxBodyBytes, otel.GetMeterProvider())
}

func newHTTPTransport(httpClient HttpClient, limiter RequestLimiter, maxBodyBytes int64, meterProvider metric.MeterProvider) (*httpTransport, error) {
	const name = "fetchlight/transport/http"

	meter := meterProvider.Meter(name)
	tracer := otel.Tracer(name)

	metrics, err := setupHTTPTransportMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &httpTransport{
		httpClient:   httpClient,
		limiter:      limiter,
		maxBodyBytes: maxBodyBytes,

		metrics: metrics,
		tracer:  tracer,
	}, nil
}

func (t *httpTransport) Issue(ctx context.Context, url string, completion func(Response)) Handle {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()
		completion(t.get(ctx, url))
	}()

	return &httpHandle{cancel: cancel}
}

func (t *httpTransport) get(ctx context.Context, url string) Response {
	ctx, span := t.tracer.Start(ctx, "HTTPTransport.Issue")
	defer span.End()

	ctx = reporting.SetImageURLInContext(ctx, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return Response{StatusCode: -1, Err: err}
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "image/*")

	statusCode := -1
	var data []byte
	start := time.Now()
	ran := t.limiter.Limit(ctx, getImageMaxOperationTime, func() {
		outcome := "ok"
		defer func() {
			t.metrics.requestCount.Add(
				ctx,
				1,
				metric.WithAttributes(
					attribute.String("status_code", strconv.Itoa(statusCode)),
					attribute.String("outcome", outcome),
				),
			)
		}()

		var resp *http.Response
		resp, err = t.httpClient.Do(req)
		if err != nil {
			outcome = "send_error"
			err = fmt.Errorf("failed to send request: %w", err)
			if ctx.Err() == nil {
				reporting.Report(ctx, err)
			}
			return
		}
		defer resp.Body.Close()

		statusCode = resp.StatusCode

		data, err = io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes+1))
		if err != nil {
			outcome = "read_error"
			err = fmt.Errorf("failed to read response body: %w", err)
			if ctx.Err() == nil {
				reporting.Report(ctx, err)
			}
			return
		}

		if int64(len(data)) > t.maxBodyBytes {
			outcome = "body_too_large"
			err = fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, t.maxBodyBytes)
			data = nil
			return
		}
	})
	if !ran {
		logging.FromContext(ctx).WarnContext(ctx, "Did not fetch image due to rate limiting", "url", url, "ctx_error", ctx.Err())
		return Response{
			StatusCode: -1,
			Err:        fmt.Errorf("%w: too many requests to image hosts", domain.ErrTemporarilyUnavailable),
		}
	}

	if err != nil {
		return Response{StatusCode: statusCode, Err: err}
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"image request completed",
		"url", url,
		"status", statusCode,
		"bytes", len(data),
		"duration", time.Since(start).String(),
	)

	return Response{
		Data:       data,
		StatusCode: statusCode,
	}
}

// Type assertion
var _ Transport = (*httpTransport)(nil)
