package serverapp

import (
	"context"
	"log/slog"

	"metagql/internal/logging"
)

// cleanupStack releases acquired resources newest-first, so nothing is torn
// down while something acquired later still depends on it.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

func (s *cleanupStack) release(ctx context.Context, logger *logging.Logger) {
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		if logger != nil {
			logger.Info("releasing resource", slog.String("component", item.name))
		}
		if err := item.fn(ctx); err != nil && logger != nil {
			logger.Warn("resource release failed",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown releases everything Init acquired. Repeated calls are no-ops.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		cleanup.release(ctx, a.logger)
	})

	return nil
}
