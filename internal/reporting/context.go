package reporting

import (
	"context"
	"net/url"
	"strings"
	"time"
)

type requestMetaContextKey struct{}

// requestMeta describes the request an error happened in
type requestMeta struct {
	userID     string
	userAgent  string
	methodPath string
	imageURL   string
	imageHost  string
	startedAt  time.Time
}

func metaFromContext(ctx context.Context) requestMeta {
	meta, ok := ctx.Value(requestMetaContextKey{}).(requestMeta)
	if !ok {
		return requestMeta{}
	}
	return meta
}

func withMeta(ctx context.Context, meta requestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// imageHostOf returns the lowercased host of rawURL, or "" if it has none
func imageHostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SetImageURLInContext attaches the image being fetched to errors reported from ctx
func SetImageURLInContext(ctx context.Context, imageURL string) context.Context {
	meta := metaFromContext(ctx)
	meta.imageURL = imageURL
	if host := imageHostOf(imageURL); host != "" {
		meta.imageHost = host
	}

	return withMeta(ctx, meta)
}

func setRequestInContext(ctx context.Context, userID, userAgent, methodPath, imageHost string, startedAt time.Time) context.Context {
	meta := metaFromContext(ctx)
	meta.userID = userID
	meta.userAgent = userAgent
	meta.methodPath = methodPath
	meta.imageHost = imageHost
	meta.startedAt = startedAt

	return withMeta(ctx, meta)
}

func (m requestMeta) tags() map[string]string {
	tags := make(map[string]string, 3)
	for key, value := range map[string]string{
		"userAgent":  m.userAgent,
		"methodPath": m.methodPath,
		"imageHost":  m.imageHost,
	} {
		if value != "" {
			tags[key] = value
		}
	}
	return tags
}
