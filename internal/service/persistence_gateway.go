package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/metrics"
	"github.com/GTDGit/pts_listener/internal/models"
)

// Persistence operation names, used in WriteError and metric labels.
const (
	OpInsertTransaction     = "insert_transaction"
	OpMarkReceived          = "mark_received"
	OpInsertRemoval         = "insert_removal"
	OpInsertCardScan        = "insert_card_scan"
	OpReplaceParameterBlock = "replace_parameter_block"
)

// EventLogStore is the eventlog table as seen by the gateway.
type EventLogStore interface {
	InsertEvent(ctx context.Context, ev *models.LogicalEvent) error
	MarkReceived(ctx context.Context, system uint8, transNum uint32, receiverID int64, receivedAt time.Time) (int64, error)
}

// StationStore is the station table as seen by the gateway.
type StationStore interface {
	ReplaceSystem(ctx context.Context, system uint8, names [models.StationsPerSystem]string) error
}

// ActivityTracker is told about every attempted write so it can push out the
// idle deadline of the database session.
type ActivityTracker interface {
	Touch()
}

// WriteError describes a failed persistence operation.
type WriteError struct {
	Op       string
	System   uint8
	TransNum uint32
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s (system %d, trans %d): %v", e.Op, e.System, e.TransNum, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// PersistenceGateway writes correlated events and station lists. Writes are
// attempted once; there is no retry and no deduplication.
type PersistenceGateway struct {
	events   EventLogStore
	stations StationStore
	activity ActivityTracker
}

// NewPersistenceGateway constructs a PersistenceGateway. activity may be nil.
func NewPersistenceGateway(events EventLogStore, stations StationStore, activity ActivityTracker) *PersistenceGateway {
	return &PersistenceGateway{
		events:   events,
		stations: stations,
		activity: activity,
	}
}

// InsertTransaction appends the row for a Transaction or Event packet.
func (g *PersistenceGateway) InsertTransaction(ctx context.Context, ev *models.LogicalEvent) error {
	return g.run(OpInsertTransaction, ev.System, ev.TransNum, func() error {
		return g.events.InsertEvent(ctx, ev)
	})
}

// UpdateSecureRemoval stamps the receiver onto the open transaction row and
// appends the removal row. The insert is attempted even when the update
// fails; both failures are returned together.
func (g *PersistenceGateway) UpdateSecureRemoval(ctx context.Context, ev *models.LogicalEvent) error {
	if ev.ReceiverID == nil {
		return &WriteError{Op: OpMarkReceived, System: ev.System, TransNum: ev.TransNum, Err: errors.New("secure removal without card id")}
	}

	updateErr := g.run(OpMarkReceived, ev.System, ev.TransNum, func() error {
		n, err := g.events.MarkReceived(ctx, ev.System, ev.TransNum, *ev.ReceiverID, ev.EventStart)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Debug().
				Uint8("system", ev.System).
				Uint32("trans_num", ev.TransNum).
				Msg("no open transaction for secure removal")
		}
		return nil
	})

	insertErr := g.run(OpInsertRemoval, ev.System, ev.TransNum, func() error {
		return g.events.InsertEvent(ctx, ev)
	})

	return errors.Join(updateErr, insertErr)
}

// InsertCardScan appends the row for a card scan.
func (g *PersistenceGateway) InsertCardScan(ctx context.Context, ev *models.LogicalEvent) error {
	return g.run(OpInsertCardScan, ev.System, ev.TransNum, func() error {
		return g.events.InsertEvent(ctx, ev)
	})
}

// ReplaceParameterBlock replaces the stored station list of system.
func (g *PersistenceGateway) ReplaceParameterBlock(ctx context.Context, system uint8, names [models.StationsPerSystem]string) error {
	return g.run(OpReplaceParameterBlock, system, 0, func() error {
		return g.stations.ReplaceSystem(ctx, system, names)
	})
}

// Persist routes ev to the write matching its kind.
func (g *PersistenceGateway) Persist(ctx context.Context, ev *models.LogicalEvent) error {
	switch ev.Kind {
	case models.KindTransaction, models.KindEvent:
		return g.InsertTransaction(ctx, ev)
	case models.KindSecureRemoval:
		return g.UpdateSecureRemoval(ctx, ev)
	case models.KindCardScan:
		return g.InsertCardScan(ctx, ev)
	default:
		return &WriteError{Op: "persist", System: ev.System, TransNum: ev.TransNum, Err: fmt.Errorf("no write for %s events", ev.Kind)}
	}
}

func (g *PersistenceGateway) run(op string, system uint8, transNum uint32, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.DBWriteDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if g.activity != nil {
		g.activity.Touch()
	}

	if err != nil {
		metrics.DBWrites.WithLabelValues(op, "error").Inc()
		return &WriteError{Op: op, System: system, TransNum: transNum, Err: err}
	}
	metrics.DBWrites.WithLabelValues(op, "ok").Inc()
	return nil
}
