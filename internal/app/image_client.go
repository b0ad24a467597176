package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"weak"

	"github.com/Amund211/fetchlight/internal/adapters/cache"
	"github.com/Amund211/fetchlight/internal/adapters/decoder"
	"github.com/Amund211/fetchlight/internal/adapters/transport"
	"github.com/Amund211/fetchlight/internal/dispatch"
	"github.com/Amund211/fetchlight/internal/domain"
	"github.com/Amund211/fetchlight/internal/inflight"
	"github.com/Amund211/fetchlight/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ImageSlot is a place an image is displayed in, e.g. a reusable list row.
type ImageSlot interface {
	DisplayImage(image *domain.Image)
}

type imageClientMetricsCollection struct {
	cacheLookups metric.Int64Counter
	completions  metric.Int64Counter
}

func setupImageClientMetrics(meter metric.Meter) (imageClientMetricsCollection, error) {
	cacheLookups, err := meter.Int64Counter("app/image_client/cache_lookups")
	if err != nil {
		return imageClientMetricsCollection{}, fmt.Errorf("failed to create cache lookups metric: %w", err)
	}

	completions, err := meter.Int64Counter("app/image_client/completions")
	if err != nil {
		return imageClientMetricsCollection{}, fmt.Errorf("failed to create completions metric: %w", err)
	}

	return imageClientMetricsCollection{
		cacheLookups: cacheLookups,
		completions:  completions,
	}, nil
}

// ImageClient fetches and decodes images, reusing earlier results for the same URL.
//
// At most one fetch is outstanding per slot: fetching for an occupied slot
// cancels the previous fetch, and the outcome of a cancelled fetch is never
// delivered.
type ImageClient struct {
	transport   transport.Transport
	decoder     decoder.Decoder
	resultCache cache.Cache[*domain.Image]
	registry    *inflight.Registry[any, *Request]
	gateway     *dispatch.Gateway
	nowFunc     func() time.Time

	metrics imageClientMetricsCollection
}

func NewImageClient(
	transport transport.Transport,
	decoder decoder.Decoder,
	resultCache cache.Cache[*domain.Image],
	gateway *dispatch.Gateway,
	nowFunc func() time.Time,
) (*ImageClient, error) {
	meter := otel.Meter("fetchlight/app/image_client")
	metrics, err := setupImageClientMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &ImageClient{
		transport:   transport,
		decoder:     decoder,
		resultCache: resultCache,
		registry:    inflight.NewRegistry[any, *Request](),
		gateway:     gateway,
		nowFunc:     nowFunc,

		metrics: metrics,
	}, nil
}

// Request is an outstanding image fetch.
type Request struct {
	url      string
	slot     any
	registry *inflight.Registry[any, *Request]

	lock      sync.Mutex
	handle    transport.Handle
	cancelled bool
	completed bool
}

func (r *Request) URL() string {
	return r.url
}

// Cancel stops the fetch. Its outcome will not be delivered or cached.
//
// Cancelling a completed or already cancelled request is a no-op.
func (r *Request) Cancel() {
	r.lock.Lock()
	if r.cancelled || r.completed {
		r.lock.Unlock()
		return
	}
	r.cancelled = true
	handle := r.handle
	r.lock.Unlock()

	if r.slot != nil {
		r.registry.CompleteIfCurrent(r.slot, r)
	}

	if handle != nil {
		handle.Cancel()
	}
}

func (r *Request) setHandle(handle transport.Handle) {
	r.lock.Lock()
	r.handle = handle
	cancelled := r.cancelled
	r.lock.Unlock()

	// Cancelled while the transport was issuing the request
	if cancelled {
		handle.Cancel()
	}
}

func (r *Request) isStale() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cancelled || r.completed {
		return true
	}

	return r.slot != nil && !r.registry.IsCurrent(r.slot, r)
}

// commit marks the request as completed if it is still live.
//
// Exactly one call succeeds for a live request, and never after Cancel.
func (r *Request) commit() bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.cancelled || r.completed {
		return false
	}

	if r.slot != nil && !r.registry.CompleteIfCurrent(r.slot, r) {
		return false
	}

	r.completed = true
	return true
}

// FetchImage delivers the image at url to callback through the client's gateway.
//
// A cached image is delivered before FetchImage returns, and nil is returned.
// Otherwise the returned request can be used to cancel the fetch.
//
// slot may be nil. A non-nil slot must be comparable; any earlier fetch for the
// same slot is cancelled.
//
// Completions only hold a weak reference to the client, so the caller must keep
// it reachable until the callback has fired.
func (c *ImageClient) FetchImage(ctx context.Context, url string, slot any, callback dispatch.Callback) *Request {
	if image, ok := c.resultCache.Lookup(url); ok {
		c.metrics.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))

		// The cached image supersedes whatever the slot was waiting for
		if slot != nil {
			c.registry.Cancel(slot)
		}

		c.gateway.Deliver(image, nil, callback)
		return nil
	}
	c.metrics.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "miss")))

	request := &Request{
		url:      url,
		slot:     slot,
		registry: c.registry,
	}

	// Register before issuing so that an immediate completion finds itself current
	if slot != nil {
		previous, replaced := c.registry.BeginOrReplace(slot, request)
		if replaced {
			logging.FromContext(ctx).DebugContext(ctx, "Replacing in-flight image request", "url", url, "previousURL", previous.url)
			previous.Cancel()
		}
	}

	weakClient := weak.Make(c)
	handle := c.transport.Issue(ctx, url, func(response transport.Response) {
		client := weakClient.Value()
		if client == nil {
			return
		}
		client.complete(ctx, request, response, callback)
	})
	request.setHandle(handle)

	return request
}

func (c *ImageClient) complete(ctx context.Context, request *Request, response transport.Response, callback dispatch.Callback) {
	if request.isStale() {
		c.dropStale(ctx, request)
		return
	}

	image, err := c.decodeResponse(ctx, request.url, response)

	if !request.commit() {
		c.dropStale(ctx, request)
		return
	}

	if err != nil {
		outcome := "transport_failure"
		if errors.Is(err, domain.ErrDecodeFailure) {
			outcome = "decode_failure"
		}
		c.metrics.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		logging.FromContext(ctx).InfoContext(ctx, "Image fetch failed", "url", request.url, "error", err.Error())

		c.gateway.Deliver(nil, err, callback)
		return
	}

	c.metrics.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))

	c.resultCache.Store(request.url, image)
	c.gateway.Deliver(image, nil, callback)
}

func (c *ImageClient) dropStale(ctx context.Context, request *Request) {
	c.metrics.completions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "stale")))
	logging.FromContext(ctx).DebugContext(ctx, "Dropping stale image response", "url", request.url)
}

func (c *ImageClient) decodeResponse(ctx context.Context, url string, response transport.Response) (*domain.Image, error) {
	if response.Err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, response.Err)
	}
	if !response.Success() {
		return nil, fmt.Errorf("%w: unsuccessful response with status code %d", domain.ErrTransportFailure, response.StatusCode)
	}

	decoded, format, err := c.decoder.Decode(ctx, response.Data)
	if err != nil {
		if errors.Is(err, domain.ErrDecodeFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDecodeFailure, err)
	}

	return &domain.Image{
		URL:       url,
		Format:    format,
		Decoded:   decoded,
		Size:      len(response.Data),
		FetchedAt: c.nowFunc(),
	}, nil
}

// BindImage displays placeholder in slot right away and the image at url once it arrives.
//
// If the fetch fails the placeholder stays. onResolved may be nil. A nil slot
// has nothing to display in, so the image is only fetched for onResolved.
func (c *ImageClient) BindImage(
	ctx context.Context,
	slot ImageSlot,
	url string,
	placeholder *domain.Image,
	onResolved dispatch.Callback,
) *Request {
	if slot == nil {
		return c.FetchImage(ctx, url, nil, onResolved)
	}

	// Cancel first so a late response for the old URL can't overwrite the placeholder
	c.registry.Cancel(slot)
	slot.DisplayImage(placeholder)

	return c.FetchImage(ctx, url, slot, func(image *domain.Image, err error) {
		if err != nil {
			logging.FromContext(ctx).WarnContext(ctx, "Failed to bind image", "url", url, "error", err.Error())
		} else {
			slot.DisplayImage(image)
		}

		if onResolved != nil {
			onResolved(image, err)
		}
	})
}

// CancelSlot cancels the outstanding fetch for slot, if any
func (c *ImageClient) CancelSlot(slot any) {
	c.registry.Cancel(slot)
}

// PendingURL returns the url slot is waiting for, if it has an outstanding fetch
func (c *ImageClient) PendingURL(slot any) (string, bool) {
	request, ok := c.registry.Current(slot)
	if !ok {
		return "", false
	}
	return request.url, true
}

// InFlight returns the number of slots with an outstanding fetch
func (c *ImageClient) InFlight() int {
	return c.registry.Len()
}
