package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/models"
)

// StationRepository provides access to the station table.
type StationRepository struct {
	db DBProvider
}

// NewStationRepository creates a new StationRepository.
func NewStationRepository(db DBProvider) *StationRepository {
	return &StationRepository{db: db}
}

// ReplaceSystem deletes every station row of system and inserts names as
// stations 0..9 in one transaction. Any failure rolls the whole unit back,
// leaving the previous rows untouched.
func (r *StationRepository) ReplaceSystem(ctx context.Context, system uint8, names [models.StationsPerSystem]string) (err error) {
	const (
		del = `DELETE FROM station WHERE system = $1`
		ins = `INSERT INTO station (system, station, station_name) VALUES ($1, $2, $3)`
	)
	db, err := r.db.DB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Uint8("system", system).Msg("station replace rollback failed")
		}
	}()

	if _, err = tx.ExecContext(ctx, del, int64(system)); err != nil {
		return fmt.Errorf("delete stations: %w", err)
	}
	for i, name := range names {
		if _, err = tx.ExecContext(ctx, ins, int64(system), int64(i), name); err != nil {
			return fmt.Errorf("insert station %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// All returns every station row ordered by system and station.
func (r *StationRepository) All(ctx context.Context) ([]models.Station, error) {
	const q = `SELECT system, station, station_name FROM station ORDER BY system, station`
	db, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.Station
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}
