package persistence

import (
	"fmt"

	"github.com/praetorlabs/praetor/internal/logger"
)

// NewEngine creates a persistence engine from configuration
func NewEngine(cfg Config, log logger.Logger) (Engine, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryEngine(), nil
	case "badger":
		return NewBadgerEngine(cfg.DataDir, cfg.SyncWrites, log)
	default:
		return nil, fmt.Errorf("unknown persistence type: %s", cfg.Type)
	}
}
