package obs

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// routeOf resolves the route label for r. Chi only knows the full pattern
// once routing has finished, so callers read it after next.ServeHTTP.
func routeOf(r *http.Request, fallback string) string {
	ctx := r.Context()
	if route := RoutePatternFromContext(ctx); route != "" {
		return route
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}

// vinOf returns the uppercased {vin} URL parameter, if the route has one.
func vinOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return strings.ToUpper(rc.URLParam("vin"))
	}
	return ""
}
