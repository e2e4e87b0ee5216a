package protocol

import (
	"fmt"

	"github.com/GTDGit/pts_listener/internal/cardid"
	"github.com/GTDGit/pts_listener/internal/models"
)

// Decoder turns datagrams of one wire revision into typed packets.
type Decoder struct {
	version *Version
	minLen  map[models.PacketKind]int
}

// NewDecoder validates v and precomputes the minimum length of every variant.
func NewDecoder(v *Version) (*Decoder, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil version", ErrUnknownVersion)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	d := &Decoder{version: v, minLen: make(map[models.PacketKind]int)}
	for _, kind := range v.kinds() {
		n, err := v.MinLength(kind)
		if err != nil {
			return nil, err
		}
		d.minLen[kind] = n
	}
	return d, nil
}

// Version returns the revision this decoder was built for.
func (d *Decoder) Version() *Version { return d.version }

// Kind reads the discriminant byte. ok is false for characters the revision
// does not know, and for datagrams too short to hold the discriminant.
func (d *Decoder) Kind(raw []byte) (kind models.PacketKind, ok bool) {
	off := d.version.DiscriminantOffset
	if len(raw) <= off {
		return "", false
	}
	kind, ok = d.version.Commands[raw[off]]
	return kind, ok
}

// Decode extracts the envelope and the payload of kind from raw.
func (d *Decoder) Decode(kind models.PacketKind, raw []byte) (*models.Packet, error) {
	need, ok := d.minLen[kind]
	if !ok {
		return nil, &DecodeError{Version: d.version.Name, Kind: kind, Length: len(raw), Err: ErrUnknownKind}
	}
	if len(raw) < need {
		return nil, &DecodeError{Version: d.version.Name, Kind: kind, Length: len(raw), Need: need, Err: ErrShortPacket}
	}

	pkt := &models.Packet{Kind: kind, Envelope: d.envelope(raw)}

	switch kind {
	case models.KindHeartbeat:
		pkt.Heartbeat = d.heartbeat(raw)
	case models.KindParameterBlock:
		pkt.ParameterBlock = d.parameterBlock(raw)
	case models.KindTransaction, models.KindEvent:
		pkt.Transaction = d.transaction(raw)
	case models.KindSecureRemoval:
		sr, err := d.secureRemoval(raw, pkt.Envelope.DeviceType)
		if err != nil {
			return nil, &DecodeError{Version: d.version.Name, Kind: kind, Length: len(raw), Err: err}
		}
		pkt.SecureRemoval = sr
	case models.KindCardScan:
		if d.version.CardScanShape == CardScanAsSecureRemoval {
			sr, err := d.secureRemoval(raw, pkt.Envelope.DeviceType)
			if err != nil {
				return nil, &DecodeError{Version: d.version.Name, Kind: kind, Length: len(raw), Err: err}
			}
			pkt.SecureRemoval = sr
		} else {
			pkt.CardScan = d.cardScan(raw, pkt.Envelope)
		}
	}
	return pkt, nil
}

func (d *Decoder) envelope(b []byte) models.Envelope {
	l := d.version.Envelope
	return models.Envelope{
		SystemNumber:   readU8(b, l.SystemNumber),
		DeviceID:       readU8(b, l.DeviceID),
		DeviceType:     readU8(b, l.DeviceType),
		Command:        readU8(b, l.Command),
		StationNumber:  readU8(b, l.StationNumber),
		SequenceNumber: readU8(b, l.SequenceNumber),
		MsTimer:        readU32(b, l.MsTimer),
	}
}

func (d *Decoder) heartbeat(b []byte) *models.HeartbeatPayload {
	l := d.version.Heartbeat
	hb := &models.HeartbeatPayload{SecTimer: readU32(b, l.SecTimer)}
	copy(hb.Status[:], readBytes(b, l.Status))
	return hb
}

func (d *Decoder) transaction(b []byte) *models.TransactionPayload {
	l := d.version.Transaction
	return &models.TransactionPayload{
		TransactionNumber: readU32(b, l.TransactionNumber),
		StartTimeSeconds:  readU32(b, l.StartTime),
		DurationSeconds:   readU16(b, l.Duration),
		SourceStation:     readU8(b, l.SourceStation),
		DestStation:       readU8(b, l.DestStation),
		Status:            readU8(b, l.Status),
		Flags:             readU8(b, l.Flags),
	}
}

func (d *Decoder) secureRemoval(b []byte, deviceType uint8) (*models.SecureRemovalPayload, error) {
	l := d.version.SecureRemoval
	window := readBytes(b, l.CardData)
	id, err := cardid.Resolve(deviceType, window)
	if err != nil {
		return nil, err
	}
	sr := &models.SecureRemovalPayload{
		TransactionNumber:  readU32(b, l.TransactionNumber),
		RemovalTimeSeconds: readU32(b, l.RemovalTime),
		CardID:             id,
		Status:             readU8(b, l.Status),
	}
	copy(sr.CardData[:], window)
	return sr, nil
}

func (d *Decoder) cardScan(b []byte, env models.Envelope) *models.CardScanPayload {
	l := d.version.CardScan
	return &models.CardScanPayload{
		DeviceID:        env.DeviceID,
		SequenceNumber:  env.SequenceNumber,
		CardID:          readU32(b, l.CardID),
		CardSite:        readU32(b, l.CardSite),
		Authorized:      readU8(b, l.Authorized) != 0,
		ActionTaken:     readU8(b, l.ActionTaken),
		ScanTimeSeconds: readU32(b, l.ScanTime),
	}
}

func (d *Decoder) parameterBlock(b []byte) *models.ParameterBlockPayload {
	l := d.version.ParameterBlock
	pb := &models.ParameterBlockPayload{
		SysID:          readU8(b, l.SysID),
		CardLeftDigits: readU8(b, l.CardLeftDigits),
		CardRightMin:   readU32(b, l.CardRightMin),
		CardRightMax:   readU32(b, l.CardRightMax),
	}
	for i, f := range l.StationNames {
		pb.StationNames[i] = readString(b, f)
	}
	return pb
}
