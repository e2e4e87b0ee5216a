// Package listener owns the receive loop: one datagram at a time is decoded,
// correlated, persisted and published before the next is read.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/metrics"
	"github.com/GTDGit/pts_listener/internal/models"
	"github.com/GTDGit/pts_listener/internal/sse"
	"github.com/GTDGit/pts_listener/internal/station"
)

// DefaultBufferSize is the largest datagram read in one call.
const DefaultBufferSize = 1024

// PacketDecoder classifies and decodes raw datagrams for one protocol version.
type PacketDecoder interface {
	Kind(raw []byte) (models.PacketKind, bool)
	Decode(kind models.PacketKind, raw []byte) (*models.Packet, error)
}

// EventCorrelator turns a decoded packet into an eventlog row.
type EventCorrelator interface {
	Correlate(pkt *models.Packet) (*models.LogicalEvent, error)
}

// EventStore persists correlated events and station lists.
type EventStore interface {
	Persist(ctx context.Context, ev *models.LogicalEvent) error
	ReplaceParameterBlock(ctx context.Context, system uint8, names [models.StationsPerSystem]string) error
}

// StationTable receives station lists from parameter blocks.
type StationTable interface {
	ReplaceAll(system uint8, names station.Names)
}

// IdleCloser closes the database session once it has been idle long enough.
type IdleCloser interface {
	CloseIfIdle() bool
}

// PacketLogger records every decoded packet that carries business data.
type PacketLogger interface {
	Write(pkt *models.Packet)
}

// Deps are the collaborators of a Dispatcher. PacketLog and Notifier may be nil.
type Deps struct {
	Decoder    PacketDecoder
	Correlator EventCorrelator
	Store      EventStore
	Stations   StationTable
	Session    IdleCloser
	PacketLog  PacketLogger
	Notifier   sse.EventNotifier
}

// Dispatcher runs the single-threaded receive loop.
type Dispatcher struct {
	deps       Deps
	bufferSize int
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher reading datagrams of up to bufferSize bytes.
func NewDispatcher(deps Deps, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if deps.Notifier == nil {
		deps.Notifier = &sse.NopNotifier{}
	}
	return &Dispatcher{deps: deps, bufferSize: bufferSize, now: time.Now}
}

// Run reads from conn until ctx is cancelled or the socket fails. Cancelling
// ctx closes conn; a packet already being handled finishes its writes first.
func (d *Dispatcher) Run(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close UDP socket")
		}
	})
	defer stop()

	log.Info().Str("addr", conn.LocalAddr().String()).Int("buffer", d.bufferSize).Msg("Listening for packets")

	buf := make([]byte, d.bufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Listener stopped")
				return nil
			}
			return fmt.Errorf("read packet: %w", err)
		}

		raw := models.RawPacket{
			ID:         uuid.New().String()[:8],
			Data:       append([]byte(nil), buf[:n]...),
			Addr:       addr,
			ReceivedAt: d.now(),
		}
		d.HandlePacket(context.WithoutCancel(ctx), raw)
		d.deps.Session.CloseIfIdle()
	}
}

// HandlePacket processes one datagram. Failures are logged and never stop
// the loop.
func (d *Dispatcher) HandlePacket(ctx context.Context, raw models.RawPacket) {
	if err := d.handle(ctx, raw); err != nil {
		remote := ""
		if raw.Addr != nil {
			remote = raw.Addr.String()
		}
		log.Error().
			Err(err).
			Str("packet_id", raw.ID).
			Str("remote", remote).
			Int("length", len(raw.Data)).
			Msg("packet processing failed")
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw models.RawPacket) error {
	kind, ok := d.deps.Decoder.Kind(raw.Data)
	if !ok {
		metrics.PacketsIgnored.Inc()
		return nil
	}
	metrics.PacketsReceived.WithLabelValues(string(kind)).Inc()

	pkt, err := d.deps.Decoder.Decode(kind, raw.Data)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(string(kind)).Inc()
		return err
	}

	logger := log.With().
		Str("packet_id", raw.ID).
		Str("kind", string(kind)).
		Uint8("system", pkt.Envelope.SystemNumber).
		Logger()

	if kind == models.KindHeartbeat {
		logger.Debug().Uint8("station", pkt.Envelope.StationNumber).Msg("heartbeat")
		return nil
	}

	if d.deps.PacketLog != nil {
		d.deps.PacketLog.Write(pkt)
	}

	if kind == models.KindParameterBlock {
		return d.parameterBlock(ctx, raw.ID, pkt)
	}

	ev, err := d.deps.Correlator.Correlate(pkt)
	if err != nil {
		return err
	}
	logger.Info().
		Uint32("trans_num", ev.TransNum).
		Int("status", ev.Status).
		Str("main_station", ev.MainStationName).
		Str("sub_station", ev.SubStationName).
		Msg("event received")

	if err := d.deps.Store.Persist(ctx, ev); err != nil {
		d.deps.Notifier.NotifyFailed(raw.ID, ev, err)
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	d.deps.Notifier.NotifyPersisted(raw.ID, ev)
	return nil
}

// parameterBlock replaces the in-memory directory before writing the station
// table; the directory keeps the new names if that write fails.
func (d *Dispatcher) parameterBlock(ctx context.Context, packetID string, pkt *models.Packet) error {
	pb := pkt.ParameterBlock
	if pb == nil {
		return errors.New("parameter block packet without payload")
	}
	system := pkt.Envelope.SystemNumber

	d.deps.Stations.ReplaceAll(system, pb.StationNames)
	d.deps.Notifier.NotifyStations(packetID, system, pb.StationNames[:])

	if err := d.deps.Store.ReplaceParameterBlock(ctx, system, pb.StationNames); err != nil {
		return fmt.Errorf("persist parameter block: %w", err)
	}
	return nil
}
