package reporting

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	t.Run("connection reset by peer", func(t *testing.T) {
		t.Parallel()

		err := `failed to send request: Get "https://images.example.com/dogs/deadbeef8315465d9d44cfc238c64f71.png": read tcp [dead:beef:feb1:d745::c001]:64079->[dead:beef::6811:112a]:443: read: connection reset by peer`
		want := `failed to send request: Get "https://images.example.com/<path>": read tcp <host>-><host>: read: connection reset by peer`
		require.Equal(t, want, sanitizeError(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		t.Parallel()

		err := `failed to send request: Get "https://cdn.example.org/i/12345?size=large&v=2": context deadline exceeded (Client.Timeout exceeded while awaiting headers)`
		want := `failed to send request: Get "https://cdn.example.org/<path>": context deadline exceeded (Client.Timeout exceeded while awaiting headers)`
		require.Equal(t, want, sanitizeError(err))
	})

	t.Run("ipv4", func(t *testing.T) {
		t.Parallel()

		err := `failed to send request: Get "http://10.0.0.12:8080/img.gif": dial tcp 10.0.0.12:8080: connect: connection refused`
		want := `failed to send request: Get "http://<host>/<path>": dial tcp <host>: connect: connection refused`
		require.Equal(t, want, sanitizeError(err))
	})

	t.Run("urls without a path are kept", func(t *testing.T) {
		t.Parallel()

		err := `failed to send request: Get "https://images.example.com": EOF`
		require.Equal(t, err, sanitizeError(err))
	})

	t.Run("query without a path", func(t *testing.T) {
		t.Parallel()

		err := `Get "https://images.example.com?id=1": EOF`
		want := `Get "https://images.example.com/<path>": EOF`
		require.Equal(t, want, sanitizeError(err))
	})

	t.Run("misc ipv6", func(t *testing.T) {
		t.Parallel()

		ips := []string{
			`1:2:3:4:5:6:7:8`,
			`1::`,
			`1:2:3:4:5:6:7::`,
			`1::8`,
			`1:2:3:4:5:6::8`,
			`1::7:8`,
			`1:2:3:4:5::7:8`,
			`1::6:7:8`,
			`1:2:3:4::6:7:8`,
			`1::5:6:7:8`,
			`1:2:3::5:6:7:8`,
			`1::4:5:6:7:8`,
			`1:2::4:5:6:7:8`,
			`1::3:4:5:6:7:8`,
			`::2:3:4:5:6:7:8`,
			`::8`,
			`::`,
		}
		for _, ip := range ips {
			t.Run(ip, func(t *testing.T) {
				t.Parallel()

				require.Equal(t, "<host>", sanitizeError(fmt.Sprintf("[%s]:1234", ip)))
			})
		}
	})

	t.Run("unrelated messages are kept", func(t *testing.T) {
		t.Parallel()

		for _, err := range []string{
			"decode failure: image: unknown format",
			"response body too large: more than 10485760 bytes",
			"version 1.2.3.4 is not supported",
		} {
			require.Equal(t, err, sanitizeError(err))
		}
	})
}

func TestAddMetaMiddleware(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, r *http.Request) requestMeta {
		t.Helper()

		var meta requestMeta
		handler := AddMetaMiddleware(func(w http.ResponseWriter, r *http.Request) {
			meta = metaFromContext(r.Context())
		})
		handler(httptest.NewRecorder(), r)
		return meta
	}

	t.Run("all props", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/v1/image/meta?url=https%3A%2F%2FImages.Example.com%2Fdog.png", nil)
		r.Header.Set("User-Agent", "user-agent/1.0")
		r.Header.Set("X-User-Id", "user-id")

		meta := run(t, r)
		require.Equal(t, map[string]string{
			"userAgent":  "user-agent/1.0",
			"methodPath": "GET /v1/image/meta",
			"imageHost":  "images.example.com",
		}, meta.tags())
		require.Equal(t, "user-id", meta.userID)
		require.Empty(t, meta.imageURL, "the url is only attached once it has been validated")
		require.WithinDuration(t, time.Now(), meta.startedAt, 5*time.Second)
	})

	t.Run("missing props", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("POST", "/other", nil)
		r.Header.Del("User-Agent")

		meta := run(t, r)
		require.Equal(t, map[string]string{
			"userAgent":  "<missing>",
			"methodPath": "POST /other",
			"imageHost":  "<missing>",
		}, meta.tags())
		require.Empty(t, meta.userID)
	})
}

func TestSetImageURLInContext(t *testing.T) {
	t.Parallel()

	t.Run("sets url and host", func(t *testing.T) {
		t.Parallel()

		ctx := SetImageURLInContext(t.Context(), "https://CDN.example.org:8443/i/1.png?size=large")

		meta := metaFromContext(ctx)
		require.Equal(t, "https://CDN.example.org:8443/i/1.png?size=large", meta.imageURL)
		require.Equal(t, map[string]string{"imageHost": "cdn.example.org"}, meta.tags())
	})

	t.Run("keeps the request meta", func(t *testing.T) {
		t.Parallel()

		startedAt := time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)
		ctx := setRequestInContext(t.Context(), "user-id", "agent", "GET /v1/image/meta", "<missing>", startedAt)
		ctx = SetImageURLInContext(ctx, "https://images.example.com/a.png")

		meta := metaFromContext(ctx)
		require.Equal(t, "user-id", meta.userID)
		require.Equal(t, startedAt, meta.startedAt)
		require.Equal(t, map[string]string{
			"userAgent":  "agent",
			"methodPath": "GET /v1/image/meta",
			"imageHost":  "images.example.com",
		}, meta.tags())
	})

	t.Run("unparseable url keeps the previous host", func(t *testing.T) {
		t.Parallel()

		ctx := SetImageURLInContext(t.Context(), "https://images.example.com/a.png")
		ctx = SetImageURLInContext(ctx, "://nope")

		meta := metaFromContext(ctx)
		require.Equal(t, "://nope", meta.imageURL)
		require.Equal(t, "images.example.com", meta.imageHost)
	})

	t.Run("does not leak into the parent context", func(t *testing.T) {
		t.Parallel()

		parent := SetImageURLInContext(t.Context(), "https://a.example.com/1.png")
		_ = SetImageURLInContext(parent, "https://b.example.com/2.png")

		require.Equal(t, "https://a.example.com/1.png", metaFromContext(parent).imageURL)
	})

	t.Run("empty context", func(t *testing.T) {
		t.Parallel()

		meta := metaFromContext(context.Background())
		require.Empty(t, meta.tags())
		require.True(t, meta.startedAt.IsZero())
	})
}

func TestReportWithoutHub(t *testing.T) {
	t.Parallel()

	// Only logs
	Report(SetImageURLInContext(t.Context(), "https://images.example.com/a.png"), assert.AnError)
	Report(t.Context(), nil)
}
