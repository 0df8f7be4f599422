// Package telemetry provides request tagging for structured logging and metrics.
package telemetry

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// requestTagsKey is the context key for request tags holder.
	requestTagsKey contextKey = "request_tags"
	// resourceKey is the context key for labelling outbound fetches.
	resourceKey contextKey = "resource"
)

// CacheResult represents the outcome of a cache lookup.
type CacheResult string

const (
	CacheHit    CacheResult = "hit"
	CacheMiss   CacheResult = "miss"
	CacheBypass CacheResult = "bypass"
	CacheNA     CacheResult = "na"
)

// Resources served by the cache, used as a low cardinality metrics label.
const (
	ResourcePopulation = "population"
	ResourcePhoto      = "photo"
	ResourceInternal   = "internal"
)

// RequestTags holds mutable request metadata that handlers can set for logging.
type RequestTags struct {
	Resource    string
	CacheResult CacheResult
	Endpoint    string
}

// InjectTags creates a new request with an empty RequestTags in context.
// Call this in middleware before handlers run.
func InjectTags(r *http.Request) *http.Request {
	tags := &RequestTags{CacheResult: CacheBypass}
	return r.WithContext(context.WithValue(r.Context(), requestTagsKey, tags))
}

// GetTags retrieves the request tags from the request context.
// Returns nil if not in a request context with logging middleware.
func GetTags(r *http.Request) *RequestTags {
	return TagsFromContext(r.Context())
}

// TagsFromContext retrieves the request tags from ctx, or nil.
func TagsFromContext(ctx context.Context) *RequestTags {
	if tags, ok := ctx.Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetCacheResultContext sets the cache result on the tags carried by ctx.
// Repositories use this since they only see the context.
func SetCacheResultContext(ctx context.Context, result CacheResult) {
	if tags := TagsFromContext(ctx); tags != nil {
		tags.CacheResult = result
	}
}

// SetResource sets the resource tag for metrics and logging.
func SetResource(r *http.Request, resource string) {
	if tags := GetTags(r); tags != nil {
		tags.Resource = resource
	}
}

// SetEndpoint sets the endpoint type for logging.
func SetEndpoint(r *http.Request, endpoint string) {
	if tags := GetTags(r); tags != nil {
		tags.Endpoint = endpoint
	}
}

// WithResourceContext returns a context that labels upstream fetches made
// with it, overriding the transport default.
func WithResourceContext(ctx context.Context, resource string) context.Context {
	return context.WithValue(ctx, resourceKey, resource)
}

// ResourceFromContext returns the resource set by WithResourceContext,
// falling back to the request tags.
func ResourceFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(resourceKey).(string); ok && r != "" {
		return r
	}
	if tags := TagsFromContext(ctx); tags != nil {
		return tags.Resource
	}
	return ""
}
