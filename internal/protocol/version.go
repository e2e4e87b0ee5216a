package protocol

import (
	"fmt"
	"strings"

	"github.com/GTDGit/pts_listener/internal/cardid"
	"github.com/GTDGit/pts_listener/internal/models"
)

// MaxPacketSize is the receive buffer size; no field may extend past it.
const MaxPacketSize = 1024

// CardScanShape selects which payload layout a card scan uses.
type CardScanShape int

const (
	// CardScanAsSecureRemoval decodes card scans with the secure removal layout.
	CardScanAsSecureRemoval CardScanShape = iota + 1
	// CardScanDedicated decodes card scans with their own layout.
	CardScanDedicated
)

type EnvelopeLayout struct {
	SystemNumber   Field
	DeviceID       Field
	DeviceType     Field
	Command        Field
	StationNumber  Field
	SequenceNumber Field
	MsTimer        Field
}

type HeartbeatLayout struct {
	SecTimer Field
	Status   Field
}

type TransactionLayout struct {
	TransactionNumber Field
	StartTime         Field
	Duration          Field
	SourceStation     Field
	DestStation       Field
	Status            Field
	Flags             Field
}

// SecureRemovalLayout locates the card window; Status lies inside it.
type SecureRemovalLayout struct {
	TransactionNumber Field
	RemovalTime       Field
	CardData          Field
	Status            Field
}

type CardScanLayout struct {
	CardID      Field
	CardSite    Field
	Authorized  Field
	ActionTaken Field
	ScanTime    Field
}

type ParameterBlockLayout struct {
	SysID          Field
	StationNames   [models.StationsPerSystem]Field
	CardLeftDigits Field
	CardRightMin   Field
	CardRightMax   Field
}

// Version describes one wire revision: where the discriminant sits, which
// command characters it understands and the byte layout of every variant.
type Version struct {
	Name               string
	DiscriminantOffset int
	Commands           map[byte]models.PacketKind
	CardScanShape      CardScanShape

	Envelope       EnvelopeLayout
	Heartbeat      HeartbeatLayout
	Transaction    TransactionLayout
	SecureRemoval  SecureRemovalLayout
	CardScan       CardScanLayout
	ParameterBlock ParameterBlockLayout
}

const (
	stationNameWidth  = 11
	stationNameStride = 12
)

func stationNames(start int) [models.StationsPerSystem]Field {
	var out [models.StationsPerSystem]Field
	for i := range out {
		out[i] = str(fmt.Sprintf("station_name_%d", i), start+i*stationNameStride, stationNameWidth)
	}
	return out
}

// Legacy is the revision without device id and sequence bytes; the command
// sits at offset 2 and card scans ('w') reuse the secure removal layout.
var Legacy = &Version{
	Name:               "legacy",
	DiscriminantOffset: 2,
	Commands: map[byte]models.PacketKind{
		'E': models.KindHeartbeat,
		'S': models.KindParameterBlock,
		'X': models.KindTransaction,
		'V': models.KindEvent,
		'W': models.KindSecureRemoval,
		'w': models.KindCardScan,
	},
	CardScanShape: CardScanAsSecureRemoval,
	Envelope: EnvelopeLayout{
		SystemNumber:   u8("system_number", 0),
		DeviceID:       absent("device_id", U8),
		DeviceType:     u8("device_type", 1),
		Command:        u8("command", 2),
		StationNumber:  u8("station_number", 3),
		SequenceNumber: absent("sequence_number", U8),
		MsTimer:        u32("ms_timer", 4),
	},
	Heartbeat: HeartbeatLayout{
		SecTimer: u32("sec_timer", 8),
		Status:   raw("status", 12, 12),
	},
	Transaction: TransactionLayout{
		TransactionNumber: u32("transaction_number", 8),
		StartTime:         u32("start_time", 12),
		Duration:          u16("duration", 16),
		SourceStation:     u8("source_station", 18),
		DestStation:       u8("dest_station", 19),
		Status:            u8("status", 20),
		Flags:             u8("flags", 21),
	},
	SecureRemoval: SecureRemovalLayout{
		TransactionNumber: u32("transaction_number", 8),
		RemovalTime:       u32("removal_time", 12),
		CardData:          raw("card_data", 16, cardid.WindowSize),
		Status:            u8("status", 20),
	},
	ParameterBlock: ParameterBlockLayout{
		SysID:          u8("sys_id", 8),
		StationNames:   stationNames(26),
		CardLeftDigits: u8("card_left_digits", 279),
		CardRightMin:   u32("card_right_min", 280),
		CardRightMax:   u32("card_right_max", 284),
	},
}

// Current carries device id and sequence bytes in the header, shifting the
// command to offset 3; card scans ('K') have a dedicated layout.
var Current = &Version{
	Name:               "current",
	DiscriminantOffset: 3,
	Commands: map[byte]models.PacketKind{
		'E': models.KindHeartbeat,
		'S': models.KindParameterBlock,
		'X': models.KindTransaction,
		'V': models.KindEvent,
		'W': models.KindSecureRemoval,
		'K': models.KindCardScan,
	},
	CardScanShape: CardScanDedicated,
	Envelope: EnvelopeLayout{
		SystemNumber:   u8("system_number", 0),
		DeviceID:       u8("device_id", 1),
		DeviceType:     u8("device_type", 2),
		Command:        u8("command", 3),
		StationNumber:  u8("station_number", 4),
		SequenceNumber: u8("sequence_number", 5),
		MsTimer:        u32("ms_timer", 6),
	},
	Heartbeat: HeartbeatLayout{
		SecTimer: u32("sec_timer", 10),
		Status:   raw("status", 14, 12),
	},
	Transaction: TransactionLayout{
		TransactionNumber: u32("transaction_number", 10),
		StartTime:         u32("start_time", 14),
		Duration:          u16("duration", 18),
		SourceStation:     u8("source_station", 20),
		DestStation:       u8("dest_station", 21),
		Status:            u8("status", 22),
		Flags:             u8("flags", 23),
	},
	SecureRemoval: SecureRemovalLayout{
		TransactionNumber: u32("transaction_number", 10),
		RemovalTime:       u32("removal_time", 14),
		CardData:          raw("card_data", 18, cardid.WindowSize),
		Status:            u8("status", 22),
	},
	CardScan: CardScanLayout{
		CardID:      u32("card_id", 10),
		CardSite:    u32("card_site", 14),
		Authorized:  u8("authorized", 18),
		ActionTaken: u8("action_taken", 19),
		ScanTime:    u32("scan_time", 20),
	},
	ParameterBlock: ParameterBlockLayout{
		SysID:          u8("sys_id", 10),
		StationNames:   stationNames(28),
		CardLeftDigits: u8("card_left_digits", 281),
		CardRightMin:   u32("card_right_min", 282),
		CardRightMax:   u32("card_right_max", 286),
	},
}

// ParseVersion returns the revision registered under name (case-insensitive).
func ParseVersion(name string) (*Version, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Legacy.Name:
		return Legacy, nil
	case Current.Name:
		return Current, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, name)
	}
}

func (v *Version) String() string { return v.Name }

// Validate checks every descriptor once. Decoders refuse unvalidated layouts.
func (v *Version) Validate() error {
	if len(v.Commands) == 0 {
		return fmt.Errorf("%w: %s: no commands", ErrInvalidLayout, v.Name)
	}
	cmd := v.Envelope.Command
	if !cmd.Present() || cmd.Kind != U8 || cmd.Offset != v.DiscriminantOffset {
		return fmt.Errorf("%w: %s: command field does not sit on discriminant offset %d",
			ErrInvalidLayout, v.Name, v.DiscriminantOffset)
	}

	for _, kind := range v.kinds() {
		fields, err := v.fieldsFor(kind)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if err := f.validate(MaxPacketSize); err != nil {
				return fmt.Errorf("%s %s: %w", v.Name, kind, err)
			}
		}
	}

	if _, ok := v.kindSet()[models.KindSecureRemoval]; ok || v.CardScanShape == CardScanAsSecureRemoval {
		sr := v.SecureRemoval
		if sr.CardData.Width != cardid.WindowSize {
			return fmt.Errorf("%s: %w", v.Name, layoutErr(sr.CardData, "card window must be 7 bytes"))
		}
		if sr.Status.Offset != sr.CardData.Offset+4 {
			return fmt.Errorf("%s: %w", v.Name, layoutErr(sr.Status, "status must be card window byte 4"))
		}
	}
	return nil
}

// MinLength is the shortest datagram that holds every field of kind.
func (v *Version) MinLength(kind models.PacketKind) (int, error) {
	fields, err := v.fieldsFor(kind)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range fields {
		if f.Present() && f.end() > n {
			n = f.end()
		}
	}
	return n, nil
}

func (v *Version) kinds() []models.PacketKind {
	set := v.kindSet()
	out := make([]models.PacketKind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func (v *Version) kindSet() map[models.PacketKind]struct{} {
	set := make(map[models.PacketKind]struct{}, len(v.Commands))
	for _, k := range v.Commands {
		set[k] = struct{}{}
	}
	return set
}

// fieldsFor lists the envelope plus the variant fields decoded for kind.
func (v *Version) fieldsFor(kind models.PacketKind) ([]Field, error) {
	e := v.Envelope
	fields := []Field{e.SystemNumber, e.DeviceID, e.DeviceType, e.Command, e.StationNumber, e.SequenceNumber, e.MsTimer}

	switch kind {
	case models.KindHeartbeat:
		h := v.Heartbeat
		fields = append(fields, h.SecTimer, h.Status)
	case models.KindTransaction, models.KindEvent:
		t := v.Transaction
		fields = append(fields, t.TransactionNumber, t.StartTime, t.Duration, t.SourceStation, t.DestStation, t.Status, t.Flags)
	case models.KindSecureRemoval:
		fields = append(fields, v.secureRemovalFields()...)
	case models.KindCardScan:
		switch v.CardScanShape {
		case CardScanAsSecureRemoval:
			fields = append(fields, v.secureRemovalFields()...)
		case CardScanDedicated:
			c := v.CardScan
			fields = append(fields, c.CardID, c.CardSite, c.Authorized, c.ActionTaken, c.ScanTime)
			for _, f := range fields[len(fields)-5:] {
				if !f.Present() {
					return nil, fmt.Errorf("%s: %w", v.Name, layoutErr(f, "missing"))
				}
			}
		default:
			return nil, fmt.Errorf("%w: %s: card scan shape not set", ErrInvalidLayout, v.Name)
		}
	case models.KindParameterBlock:
		p := v.ParameterBlock
		fields = append(fields, p.SysID)
		fields = append(fields, p.StationNames[:]...)
		fields = append(fields, p.CardLeftDigits, p.CardRightMin, p.CardRightMax)
	default:
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownKind, v.Name, kind)
	}
	return fields, nil
}

func (v *Version) secureRemovalFields() []Field {
	s := v.SecureRemoval
	return []Field{s.TransactionNumber, s.RemovalTime, s.CardData, s.Status}
}

func layoutErr(f Field, msg string) error {
	return fmt.Errorf("%w: field %s (offset %d, width %d, %s): %s", ErrInvalidLayout, f.Name, f.Offset, f.Width, f.Kind, msg)
}
