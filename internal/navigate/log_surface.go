package navigate

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogSurface is a Surface that only records what it was asked to load.
// It backs dry runs and the check command.
type LogSurface struct {
	Logger *zap.Logger

	mu      sync.Mutex
	history []string
}

// Load implements Surface.
func (s *LogSurface) Load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.history = append(s.history, url)
	s.mu.Unlock()
	if s.Logger != nil {
		s.Logger.Info("surface load", zap.String("url", url))
	}
	return nil
}

// History returns the loaded URLs in order.
func (s *LogSurface) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}
