// Package projector keeps the keyword latest projection fresh by
// rebuilding it at a configured interval.
package projector

import (
	"context"
	"sync"
	"time"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"github.com/sirupsen/logrus"
)

// Projector is a background service that periodically rebuilds the
// latest projection from the observations table.
type Projector interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Projector = (*projector)(nil)

type projector struct {
	log      logrus.FieldLogger
	store    store.Store
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewProjector creates a new background projector.
func NewProjector(
	log logrus.FieldLogger,
	st store.Store,
	interval time.Duration,
) Projector {
	return &projector{
		log:      log.WithField("component", "projector"),
		store:    st,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate rebuild
// and then ticks at the configured interval. The first pass is
// asynchronous so the caller is not blocked.
func (p *projector) Start(ctx context.Context) error {
	p.log.WithField("interval", p.interval.String()).
		Info("Starting projector")

	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		// Run one pass immediately.
		p.runPass(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.runPass(ctx)
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the projector goroutine to stop and waits for it.
func (p *projector) Stop() error {
	close(p.done)
	p.wg.Wait()

	p.log.Info("Projector stopped")

	return nil
}

// runPass executes one projection rebuild.
func (p *projector) runPass(ctx context.Context) {
	if _, err := p.store.RebuildLatest(ctx); err != nil {
		p.log.WithError(err).Warn("Projection rebuild failed")
	}
}
