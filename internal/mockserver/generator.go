package mockserver

import (
	"context"
	"time"
)

// Generator drives the simulated player clock.
type Generator struct {
	store       *Store
	broadcaster *Broadcaster
	interval    time.Duration
	autoplay    bool
}

// NewGenerator returns a generator advancing store every interval. With
// autoplay set, Run begins playback of the current playlist.
func NewGenerator(store *Store, broadcaster *Broadcaster, interval time.Duration, autoplay bool) *Generator {
	return &Generator{
		store:       store,
		broadcaster: broadcaster,
		interval:    interval,
		autoplay:    autoplay,
	}
}

// Run drives the clock until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	if g.autoplay {
		g.broadcaster.Queue(g.store.Play())
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(g.interval)
		}
	}
}

func (g *Generator) tick(d time.Duration) {
	g.broadcaster.Queue(g.store.Advance(d))
}
