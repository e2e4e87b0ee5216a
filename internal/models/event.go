package models

import "time"

// EventTypeCardScan is the event type recorded for standalone card scans: the
// command character 'K' itself.
const EventTypeCardScan = int('K')

// LogicalEvent is a correlated packet ready to be written to the eventlog table.
type LogicalEvent struct {
	Kind            PacketKind `db:"-" json:"kind"`
	TransNum        uint32     `db:"transnum" json:"transNum"`
	System          uint8      `db:"system" json:"system"`
	EventType       int        `db:"eventtype" json:"eventType"`
	EventStart      time.Time  `db:"eventstart" json:"eventStart"`
	Duration        int        `db:"duration" json:"duration"`
	Source          int        `db:"source" json:"source"`
	Destination     int        `db:"destination" json:"destination"`
	Status          int        `db:"status" json:"status"`
	Flags           int64      `db:"flags" json:"flags"`
	ReceiverID      *int64     `db:"receiverid" json:"receiverId,omitempty"`
	ReceiveTime     *time.Time `db:"receivetime" json:"receiveTime,omitempty"`
	MainStationName string     `db:"mainstationname" json:"mainStationName"`
	SubStationName  string     `db:"substationname" json:"subStationName"`
}

// CorrelationKey is the transaction number linking removals back to their
// originating transaction row. Zero for scan-only events.
func (e *LogicalEvent) CorrelationKey() uint32 {
	return e.TransNum
}

// Station is one row of the station table.
type Station struct {
	System  uint8  `db:"system" json:"system"`
	Station uint8  `db:"station" json:"station"`
	Name    string `db:"station_name" json:"name"`
}
