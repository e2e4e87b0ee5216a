package models

import (
	"net"
	"strconv"
	"time"
)

// StationsPerSystem is the number of station names carried by a parameter block.
const StationsPerSystem = 10

// PacketKind identifies the decoded variant of a datagram.
type PacketKind string

const (
	KindHeartbeat      PacketKind = "heartbeat"
	KindParameterBlock PacketKind = "parameter_block"
	KindTransaction    PacketKind = "transaction"
	KindEvent          PacketKind = "event"
	KindSecureRemoval  PacketKind = "secure_removal"
	KindCardScan       PacketKind = "card_scan"
)

// RawPacket is one received datagram. It lives for a single dispatch iteration.
type RawPacket struct {
	ID         string
	Data       []byte
	Addr       net.Addr
	ReceivedAt time.Time
}

// Envelope is the common header present in every packet.
// DeviceID and SequenceNumber are zero for revisions that do not carry them.
type Envelope struct {
	SystemNumber   uint8
	DeviceID       uint8
	DeviceType     uint8
	Command        byte
	StationNumber  uint8
	SequenceNumber uint8
	MsTimer        uint32
}

// HeartbeatPayload is decoded for completeness only.
type HeartbeatPayload struct {
	SecTimer uint32
	Status   [12]byte
}

// TransactionPayload describes a tube transfer. Event packets share this shape.
type TransactionPayload struct {
	TransactionNumber uint32
	StartTimeSeconds  uint32
	DurationSeconds   uint16
	SourceStation     uint8
	DestStation       uint8
	Status            uint8
	Flags             uint8
}

// SecureRemovalPayload reports a secured container being retrieved.
// CardData keeps the raw card window the CardID was reconstructed from.
type SecureRemovalPayload struct {
	TransactionNumber  uint32
	RemovalTimeSeconds uint32
	CardID             int64
	Status             uint8
	CardData           [7]byte
}

// CardScanPayload is a standalone card scan at a station reader.
type CardScanPayload struct {
	DeviceID        uint8
	SequenceNumber  uint8
	CardID          uint32
	CardSite        uint32
	Authorized      bool
	ActionTaken     uint8
	ScanTimeSeconds uint32
}

// ParameterBlockPayload carries the configuration of one system.
type ParameterBlockPayload struct {
	SysID          uint8
	StationNames   [StationsPerSystem]string
	CardLeftDigits uint8
	CardRightMin   uint32
	CardRightMax   uint32
}

// Packet is a decoded datagram. Exactly one payload pointer is set, selected
// by Kind, except for KindCardScan on revisions whose card scan reuses the
// secure removal layout: there SecureRemoval is set and CardScan is nil.
type Packet struct {
	Kind     PacketKind
	Envelope Envelope

	Heartbeat      *HeartbeatPayload
	ParameterBlock *ParameterBlockPayload
	Transaction    *TransactionPayload
	SecureRemoval  *SecureRemovalPayload
	CardScan       *CardScanPayload
}

// Fields flattens the packet into its textual field values, envelope first.
func (p *Packet) Fields() []string {
	e := p.Envelope
	out := []string{
		u(e.SystemNumber),
		u(e.DeviceID),
		u(e.DeviceType),
		string(rune(e.Command)),
		u(e.StationNumber),
		u(e.SequenceNumber),
		u32(e.MsTimer),
	}

	switch {
	case p.Heartbeat != nil:
		out = append(out, u32(p.Heartbeat.SecTimer))
		for _, b := range p.Heartbeat.Status {
			out = append(out, u(b))
		}
	case p.ParameterBlock != nil:
		pb := p.ParameterBlock
		out = append(out, u(pb.SysID))
		out = append(out, pb.StationNames[:]...)
		out = append(out, u(pb.CardLeftDigits), u32(pb.CardRightMin), u32(pb.CardRightMax))
	case p.Transaction != nil:
		tx := p.Transaction
		out = append(out,
			u32(tx.TransactionNumber),
			u32(tx.StartTimeSeconds),
			strconv.FormatUint(uint64(tx.DurationSeconds), 10),
			u(tx.SourceStation),
			u(tx.DestStation),
			u(tx.Status),
			u(tx.Flags),
		)
	case p.SecureRemoval != nil:
		sr := p.SecureRemoval
		out = append(out,
			u32(sr.TransactionNumber),
			u32(sr.RemovalTimeSeconds),
			strconv.FormatInt(sr.CardID, 10),
			u(sr.Status),
		)
		for _, b := range sr.CardData {
			out = append(out, u(b))
		}
	case p.CardScan != nil:
		cs := p.CardScan
		out = append(out,
			u32(cs.CardID),
			u32(cs.CardSite),
			strconv.FormatBool(cs.Authorized),
			u(cs.ActionTaken),
			u32(cs.ScanTimeSeconds),
		)
	}
	return out
}

func u(v uint8) string    { return strconv.FormatUint(uint64(v), 10) }
func u32(v uint32) string { return strconv.FormatUint(uint64(v), 10) }
