package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/station"
)

// StationSource lists the station names currently known to the listener.
type StationSource interface {
	Systems() []uint8
	Names(system uint8) (station.Names, bool)
}

// MirrorWorker periodically republishes every known station list to the
// mirror, so a restarted cache catches up without waiting for the next
// parameter block.
type MirrorWorker struct {
	source   StationSource
	mirror   station.Mirror
	interval time.Duration
}

// NewMirrorWorker constructs a MirrorWorker.
func NewMirrorWorker(source StationSource, mirror station.Mirror, interval time.Duration) *MirrorWorker {
	return &MirrorWorker{
		source:   source,
		mirror:   mirror,
		interval: interval,
	}
}

// Start begins the periodic sync loop and listens for context cancellation.
func (w *MirrorWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Starting station mirror worker")

	// Run immediately on start
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			log.Info().Msg("Station mirror worker stopped")
			return
		}
	}
}

func (w *MirrorWorker) run(ctx context.Context) {
	start := time.Now()
	synced := 0
	for _, sys := range w.source.Systems() {
		if ctx.Err() != nil {
			return
		}
		names, ok := w.source.Names(sys)
		if !ok {
			continue
		}
		if err := w.mirror.SetStations(ctx, sys, names); err != nil {
			log.Error().Err(err).Uint8("system", sys).Msg("Failed to mirror station list")
			continue
		}
		synced++
	}
	log.Debug().Int("systems", synced).Dur("duration", time.Since(start)).Msg("Station mirror sync completed")
}
