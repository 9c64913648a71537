package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sodav/detection-core/internal/model"
)

// maxConsecutiveFailures before a station is marked Error, mirroring the
// original's _update_station_status_efficient three-strikes policy.
const maxConsecutiveFailures = 3

// ListStations returns every Active station for the orchestrator to poll,
// per §4.9: a cycle only ever fetches Active stations. Error, Inactive and
// Maintenance stations sit out until something (a successful check, a fresh
// detection, an operator) moves them back.
func (s *Store) ListStations() ([]model.RadioStation, error) {
	var stations []model.RadioStation
	if err := s.DB.Where("status = ?", model.StationActive).Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	return stations, nil
}

// RecordCycleSuccess resets a station's failure streak and marks it Active.
func (s *Store) RecordCycleSuccess(stationID uint) error {
	now := time.Now()
	return s.DB.Model(&model.RadioStation{}).Where("id = ?", stationID).Updates(map[string]interface{}{
		"status":           model.StationActive,
		"consecutive_fail": 0,
		"last_check":       &now,
		"last_success":     &now,
	}).Error
}

// RecordCycleFailure bumps the failure streak, marking the station Error
// once it crosses maxConsecutiveFailures.
func (s *Store) RecordCycleFailure(stationID uint) error {
	var station model.RadioStation
	if err := s.DB.First(&station, stationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("station %d not found: %w", stationID, err)
		}
		return fmt.Errorf("reading station: %w", err)
	}

	now := time.Now()
	fails := station.ConsecutiveFail + 1
	status := station.Status
	if fails >= maxConsecutiveFailures {
		status = model.StationError
	}

	return s.DB.Model(&station).Updates(map[string]interface{}{
		"status":           status,
		"consecutive_fail": fails,
		"last_check":       &now,
	}).Error
}
