// Package correlator turns decoded packets into eventlog rows, resolving
// station names and deciding which end of a transfer is the main station.
package correlator

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/models"
)

const (
	// EventStatusDoorOpen marks door events whose station is identified by flags bit 0.
	EventStatusDoorOpen = 64

	flagMainDoor = 0x01
)

// StationLookup resolves a station name, returning "" when it is unknown.
type StationLookup interface {
	Lookup(system, station uint8) string
}

// Correlator maps packets to LogicalEvents.
type Correlator struct {
	stations StationLookup
}

// New creates a Correlator reading names from stations.
func New(stations StationLookup) *Correlator {
	return &Correlator{stations: stations}
}

// Correlate builds the LogicalEvent for pkt. Parameter blocks and heartbeats
// do not produce events and return an error.
func (c *Correlator) Correlate(pkt *models.Packet) (*models.LogicalEvent, error) {
	switch pkt.Kind {
	case models.KindTransaction:
		if pkt.Transaction == nil {
			return nil, missingPayload(pkt)
		}
		return c.transaction(pkt), nil
	case models.KindEvent:
		if pkt.Transaction == nil {
			return nil, missingPayload(pkt)
		}
		return c.event(pkt), nil
	case models.KindSecureRemoval:
		if pkt.SecureRemoval == nil {
			return nil, missingPayload(pkt)
		}
		return c.secureRemoval(pkt), nil
	case models.KindCardScan:
		switch {
		case pkt.CardScan != nil:
			return c.cardScan(pkt), nil
		case pkt.SecureRemoval != nil:
			ev := c.secureRemoval(pkt)
			ev.Kind = models.KindCardScan
			return ev, nil
		default:
			return nil, missingPayload(pkt)
		}
	default:
		return nil, fmt.Errorf("correlator: %s packets do not produce events", pkt.Kind)
	}
}

func missingPayload(pkt *models.Packet) error {
	return fmt.Errorf("correlator: %s packet without payload", pkt.Kind)
}

func transactionRow(pkt *models.Packet) *models.LogicalEvent {
	tx := pkt.Transaction
	return &models.LogicalEvent{
		Kind:        pkt.Kind,
		TransNum:    tx.TransactionNumber,
		System:      pkt.Envelope.SystemNumber,
		EventType:   int(tx.Status),
		EventStart:  models.ControllerTime(tx.StartTimeSeconds),
		Duration:    int(tx.DurationSeconds),
		Source:      int(tx.SourceStation),
		Destination: int(tx.DestStation),
		Status:      int(tx.Status),
		Flags:       int64(tx.Flags),
	}
}

// transaction names the main station first. A transfer from station 0
// started at the main station; anything else was initiated remotely, so the
// destination is the main end.
func (c *Correlator) transaction(pkt *models.Packet) *models.LogicalEvent {
	ev := transactionRow(pkt)
	tx := pkt.Transaction
	sys := pkt.Envelope.SystemNumber

	if tx.SourceStation == 0 {
		ev.MainStationName = c.stations.Lookup(sys, tx.SourceStation)
		ev.SubStationName = c.stations.Lookup(sys, tx.DestStation)
	} else {
		ev.MainStationName = c.stations.Lookup(sys, tx.DestStation)
		ev.SubStationName = c.stations.Lookup(sys, tx.SourceStation)
	}
	return ev
}

// event names only the door that opened. Flags bit 0 set means the main
// station door; clear means the remote station door. The station itself is
// always the one reported in the source field.
func (c *Correlator) event(pkt *models.Packet) *models.LogicalEvent {
	ev := transactionRow(pkt)
	tx := pkt.Transaction
	sys := pkt.Envelope.SystemNumber

	if tx.Status != EventStatusDoorOpen {
		log.Warn().
			Uint8("system", sys).
			Uint32("trans_num", tx.TransactionNumber).
			Uint8("status", tx.Status).
			Uint8("flags", tx.Flags).
			Msg("unclassified event shape")
		return ev
	}

	name := c.stations.Lookup(sys, tx.SourceStation)
	if tx.Flags&flagMainDoor != 0 {
		ev.MainStationName = name
	} else {
		ev.SubStationName = name
	}
	return ev
}

func (c *Correlator) secureRemoval(pkt *models.Packet) *models.LogicalEvent {
	sr := pkt.SecureRemoval
	env := pkt.Envelope
	card := sr.CardID
	return &models.LogicalEvent{
		Kind:           pkt.Kind,
		TransNum:       sr.TransactionNumber,
		System:         env.SystemNumber,
		EventType:      int(sr.Status),
		EventStart:     models.ControllerTime(sr.RemovalTimeSeconds),
		Source:         int(env.StationNumber),
		Status:         int(sr.Status),
		Flags:          card,
		ReceiverID:     &card,
		SubStationName: c.stations.Lookup(env.SystemNumber, env.StationNumber),
	}
}

func (c *Correlator) cardScan(pkt *models.Packet) *models.LogicalEvent {
	cs := pkt.CardScan
	env := pkt.Envelope
	card := int64(cs.CardID)
	at := models.ControllerTime(cs.ScanTimeSeconds)
	return &models.LogicalEvent{
		Kind:           pkt.Kind,
		System:         env.SystemNumber,
		EventType:      models.EventTypeCardScan,
		EventStart:     at,
		Source:         int(env.StationNumber),
		Flags:          int64(cs.CardSite),
		ReceiverID:     &card,
		ReceiveTime:    &at,
		SubStationName: c.stations.Lookup(env.SystemNumber, env.StationNumber),
	}
}
