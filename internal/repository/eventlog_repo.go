package repository

import (
	"context"
	"time"

	"github.com/GTDGit/pts_listener/internal/models"
)

// EventLogRepository provides access to the eventlog table.
type EventLogRepository struct {
	db DBProvider
}

// NewEventLogRepository creates a new EventLogRepository.
func NewEventLogRepository(db DBProvider) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// InsertEvent appends one eventlog row.
func (r *EventLogRepository) InsertEvent(ctx context.Context, ev *models.LogicalEvent) error {
	const q = `
        INSERT INTO eventlog (
            TransNum, System, EventType, EventStart, Duration, Source, Destination,
            Status, Flags, ReceiverID, ReceiveTime, MainStationName, SubStationName
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7,
            $8, $9, $10, $11, $12, $13
        )`
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, q,
		int64(ev.TransNum), int64(ev.System), ev.EventType, ev.EventStart, ev.Duration, ev.Source, ev.Destination,
		ev.Status, ev.Flags, ev.ReceiverID, ev.ReceiveTime, ev.MainStationName, ev.SubStationName,
	)
	return err
}

// MarkReceived records the receiver on the open transaction row (status 0)
// matching system and transNum. It returns the number of rows updated.
func (r *EventLogRepository) MarkReceived(ctx context.Context, system uint8, transNum uint32, receiverID int64, receivedAt time.Time) (int64, error) {
	const q = `
        UPDATE eventlog SET ReceiverID = $1, ReceiveTime = $2
        WHERE System = $3 AND TransNum = $4 AND Status = 0`
	db, err := r.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, q, receiverID, receivedAt, int64(system), int64(transNum))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Recent returns the newest eventlog rows, newest first.
func (r *EventLogRepository) Recent(ctx context.Context, limit int) ([]models.LogicalEvent, error) {
	const q = `
        SELECT
            TransNum AS transnum, System AS system,
            COALESCE(EventType, 0) AS eventtype, EventStart AS eventstart,
            COALESCE(Duration, 0) AS duration, COALESCE(Source, 0) AS source,
            COALESCE(Destination, 0) AS destination, COALESCE(Status, 0) AS status,
            COALESCE(Flags, 0) AS flags, ReceiverID AS receiverid, ReceiveTime AS receivetime,
            COALESCE(MainStationName, '') AS mainstationname,
            COALESCE(SubStationName, '') AS substationname
        FROM eventlog
        ORDER BY EventStart DESC
        LIMIT $1`
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.LogicalEvent
	if err := db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, err
	}
	return out, nil
}
