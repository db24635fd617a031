package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/models"
)

// RegistryDBLayer is the persistence surface the service depends on.
type RegistryDBLayer interface {
	CreateStation(ctx context.Context, station models.CheckinStation) error
	GetStation(ctx context.Context, id string) (*models.CheckinStation, error)
	UpdateStation(ctx context.Context, station models.CheckinStation) error
	ListStations(ctx context.Context, eventID string) ([]models.CheckinStation, error)
	RecordRedemption(ctx context.Context, stationID string, at time.Time) error
	CreateZone(ctx context.Context, zone models.AccessZone) error
	GetZone(ctx context.Context, id string) (*models.AccessZone, error)
	UpdateZone(ctx context.Context, zone models.AccessZone) error
	ListZones(ctx context.Context, eventID string) ([]models.AccessZone, error)
}

type Service struct {
	DB RegistryDBLayer
}

func NewService(db RegistryDBLayer) *Service {
	return &Service{DB: db}
}

func (s *Service) CreateStation(ctx context.Context, station models.CheckinStation) (models.CheckinStation, error) {
	if station.EventID == "" || station.Name == "" {
		return models.CheckinStation{}, fmt.Errorf("station requires event_id and name")
	}
	if station.ID == "" {
		station.ID = uuid.New().String()
	}
	station.CheckedInCount = 0
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}

	// A station pinned to a zone must reference a zone that exists for
	// its event; an empty zone means "all zones".
	if station.AccessZone != "" {
		if _, err := s.DB.GetZone(ctx, station.AccessZone); err != nil {
			return models.CheckinStation{}, fmt.Errorf("station zone %s: %w", station.AccessZone, err)
		}
	}

	if err := s.DB.CreateStation(ctx, station); err != nil {
		return models.CheckinStation{}, fmt.Errorf("failed to create station: %w", err)
	}
	return station, nil
}

func (s *Service) UpdateStation(ctx context.Context, id string, update models.CheckinStation) (models.CheckinStation, error) {
	station, err := s.DB.GetStation(ctx, id)
	if err != nil {
		return models.CheckinStation{}, err
	}

	// Counter and activity stamp are owned by the redemption path and are
	// never writable through CRUD.
	station.Name = update.Name
	station.AccessZone = update.AccessZone
	station.Settings = update.Settings

	if station.AccessZone != "" {
		if _, err := s.DB.GetZone(ctx, station.AccessZone); err != nil {
			return models.CheckinStation{}, fmt.Errorf("station zone %s: %w", station.AccessZone, err)
		}
	}

	if err := s.DB.UpdateStation(ctx, *station); err != nil {
		return models.CheckinStation{}, fmt.Errorf("failed to update station: %w", err)
	}
	return *station, nil
}

func (s *Service) GetStation(ctx context.Context, id string) (*models.CheckinStation, error) {
	return s.DB.GetStation(ctx, id)
}

func (s *Service) ListStations(ctx context.Context, eventID string) ([]models.CheckinStation, error) {
	return s.DB.ListStations(ctx, eventID)
}

// RecordRedemption is called by the coordinator after a successful check-in.
func (s *Service) RecordRedemption(ctx context.Context, stationID string, at time.Time) error {
	return s.DB.RecordRedemption(ctx, stationID, at)
}

func (s *Service) CreateZone(ctx context.Context, zone models.AccessZone) (models.AccessZone, error) {
	if zone.EventID == "" || zone.Name == "" {
		return models.AccessZone{}, fmt.Errorf("zone requires event_id and name")
	}
	if zone.ID == "" {
		zone.ID = uuid.New().String()
	}
	if zone.CreatedAt.IsZero() {
		zone.CreatedAt = time.Now().UTC()
	}
	if err := s.DB.CreateZone(ctx, zone); err != nil {
		return models.AccessZone{}, fmt.Errorf("failed to create zone: %w", err)
	}
	return zone, nil
}

func (s *Service) UpdateZone(ctx context.Context, id string, update models.AccessZone) (models.AccessZone, error) {
	zone, err := s.DB.GetZone(ctx, id)
	if err != nil {
		return models.AccessZone{}, err
	}

	zone.Name = update.Name
	zone.Capacity = update.Capacity
	zone.OpensAt = update.OpensAt
	zone.ClosesAt = update.ClosesAt

	if err := s.DB.UpdateZone(ctx, *zone); err != nil {
		return models.AccessZone{}, fmt.Errorf("failed to update zone: %w", err)
	}
	return *zone, nil
}

func (s *Service) GetZone(ctx context.Context, id string) (*models.AccessZone, error) {
	return s.DB.GetZone(ctx, id)
}

func (s *Service) ListZones(ctx context.Context, eventID string) ([]models.AccessZone, error) {
	return s.DB.ListZones(ctx, eventID)
}
