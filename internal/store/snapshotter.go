package store

import (
	"context"
	"log"
	"time"

	"github.com/ndrandal/marketsim/internal/instance"
)

// Snapshotter periodically exports every live instance and persists it,
// the same periodic-save idiom as the teacher's own Snapshotter.Run, but
// iterating one export per tracked instance instead of one global
// document, since this domain has many independent instances rather
// than one simulator-wide state blob.
type Snapshotter struct {
	exports *ExportStore
	ctrl    *instance.Controller
}

// NewSnapshotter wraps exports and ctrl for periodic export persistence.
func NewSnapshotter(exports *ExportStore, ctrl *instance.Controller) *Snapshotter {
	return &Snapshotter{exports: exports, ctrl: ctrl}
}

// Run starts the periodic snapshot loop. Blocks until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("performing final snapshot...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.saveAll(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			s.saveAll(ctx)
		}
	}
}

func (s *Snapshotter) saveAll(ctx context.Context) {
	for _, summary := range s.ctrl.List("") {
		exp, err := s.ctrl.Export(summary.Id)
		if err != nil {
			continue
		}
		if err := s.exports.Save(ctx, exp); err != nil {
			log.Printf("snapshot %s: %v", summary.Id, err)
		}
	}
}
