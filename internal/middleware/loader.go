package middleware

import (
	"net/http"

	"metagql/internal/loader"
	"metagql/internal/observability"
	"metagql/internal/storage"
)

// LoaderMiddleware injects a fresh relation loader into each request context.
// Loaders accumulate per-request state (parent sets, flushed batches), so one
// request must never see another request's loader.
func LoaderMiddleware(store storage.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := loader.New(store)
			ctx := loader.NewContext(r.Context(), l)

			next.ServeHTTP(w, r.WithContext(ctx))

			if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
				stats := l.Stats()
				metrics.RecordBatchStats(ctx, stats.Hits, stats.Misses, stats.FlushErrors)
			}
		})
	}
}
