package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrZoneNotFound    = errors.New("access zone not found")
)

type DB struct {
	Bun *bun.DB
}

// ---------------- STATIONS ----------------

func (d *DB) CreateStation(ctx context.Context, station models.CheckinStation) error {
	_, err := d.Bun.NewInsert().Model(&station).Exec(ctx)
	return err
}

func (d *DB) GetStation(ctx context.Context, id string) (*models.CheckinStation, error) {
	var station models.CheckinStation
	err := d.Bun.NewSelect().
		Model(&station).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &station, nil
}

func (d *DB) UpdateStation(ctx context.Context, station models.CheckinStation) error {
	_, err := d.Bun.NewUpdate().
		Model(&station).
		Column("name", "access_zone", "settings").
		Where("id = ?", station.ID).
		Exec(ctx)
	return err
}

func (d *DB) ListStations(ctx context.Context, eventID string) ([]models.CheckinStation, error) {
	var stations []models.CheckinStation
	err := d.Bun.NewSelect().
		Model(&stations).
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stations, nil
}

// RecordRedemption bumps the station's rolling counter and activity stamp.
// The increment runs in SQL so concurrent stations never lose updates to a
// read-modify-write race; the counter is still only a monitoring aid.
func (d *DB) RecordRedemption(ctx context.Context, stationID string, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.CheckinStation)(nil)).
		Set("checked_in_count = checked_in_count + 1").
		Set("last_activity = ?", at).
		Where("id = ?", stationID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record redemption on station %s: %w", stationID, err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return ErrStationNotFound
	}
	return nil
}

// ---------------- ZONES ----------------

func (d *DB) CreateZone(ctx context.Context, zone models.AccessZone) error {
	_, err := d.Bun.NewInsert().Model(&zone).Exec(ctx)
	return err
}

func (d *DB) GetZone(ctx context.Context, id string) (*models.AccessZone, error) {
	var zone models.AccessZone
	err := d.Bun.NewSelect().
		Model(&zone).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrZoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

func (d *DB) UpdateZone(ctx context.Context, zone models.AccessZone) error {
	_, err := d.Bun.NewUpdate().
		Model(&zone).
		Column("name", "capacity", "opens_at", "closes_at").
		Where("id = ?", zone.ID).
		Exec(ctx)
	return err
}

func (d *DB) ListZones(ctx context.Context, eventID string) ([]models.AccessZone, error) {
	var zones []models.AccessZone
	err := d.Bun.NewSelect().
		Model(&zones).
		Where("event_id = ?", eventID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return zones, nil
}
