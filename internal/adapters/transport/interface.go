package transport

import "context"

// Response is the outcome of a single transport operation.
type Response struct {
	Data       []byte
	StatusCode int
	Err        error
}

// Success reports whether the response carries a usable payload
func (r Response) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300 && r.Data != nil
}

// Handle cancels an issued transport operation. Cancel is best effort and never blocks.
type Handle interface {
	Cancel()
}

// Transport retrieves the bytes behind a URL.
//
// Issue returns immediately. completion is called exactly once, on a goroutine
// owned by the transport, unless the operation was cancelled first. A
// cancelled operation may still call completion.
type Transport interface {
	Issue(ctx context.Context, url string, completion func(Response)) Handle
}
