// Package station keeps the mapping from (system, station) to station name.
package station

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/models"
)

// Names is the full station list of one system, indexed by station number.
type Names = [models.StationsPerSystem]string

// Mirror receives every wholesale replacement, e.g. to publish it to a cache.
type Mirror interface {
	SetStations(ctx context.Context, system uint8, names Names) error
}

// Directory is the in-memory station name table. Each system's list is
// replaced as a whole so readers never observe a partial list.
type Directory struct {
	mu      sync.RWMutex
	systems map[uint8]Names
	mirror  Mirror
}

// NewDirectory creates an empty Directory. mirror may be nil.
func NewDirectory(mirror Mirror) *Directory {
	return &Directory{
		systems: make(map[uint8]Names),
		mirror:  mirror,
	}
}

// ReplaceAll installs names as the complete station list of system.
func (d *Directory) ReplaceAll(system uint8, names Names) {
	d.mu.Lock()
	d.systems[system] = names
	d.mu.Unlock()

	log.Debug().Uint8("system", system).Strs("stations", names[:]).Msg("station directory replaced")

	if d.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.mirror.SetStations(ctx, system, names); err != nil {
		log.Warn().Err(err).Uint8("system", system).Msg("failed to mirror station directory")
	}
}

// Lookup returns the station name or "" if the system or station is unknown.
func (d *Directory) Lookup(system, station uint8) string {
	d.mu.RLock()
	names, ok := d.systems[system]
	d.mu.RUnlock()

	if !ok {
		log.Debug().Uint8("system", system).Uint8("station", station).Msg("no parameter block seen for system")
		return ""
	}
	if int(station) >= len(names) {
		log.Debug().Uint8("system", system).Uint8("station", station).Msg("station number outside parameter block")
		return ""
	}
	return names[station]
}

// Names returns a copy of the station list of system.
func (d *Directory) Names(system uint8) (Names, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names, ok := d.systems[system]
	return names, ok
}

// Systems lists the systems with a known station list, in ascending order.
func (d *Directory) Systems() []uint8 {
	d.mu.RLock()
	out := make([]uint8, 0, len(d.systems))
	for sys := range d.systems {
		out = append(out, sys)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load seeds the directory from persisted station rows. Rows outside the
// station range are skipped. The mirror is not notified.
func (d *Directory) Load(rows []models.Station) {
	loaded := make(map[uint8]Names)
	for _, r := range rows {
		if int(r.Station) >= models.StationsPerSystem {
			continue
		}
		names := loaded[r.System]
		names[r.Station] = r.Name
		loaded[r.System] = names
	}

	d.mu.Lock()
	for sys, names := range loaded {
		d.systems[sys] = names
	}
	d.mu.Unlock()

	log.Info().Int("systems", len(loaded)).Int("rows", len(rows)).Msg("station directory loaded")
}
