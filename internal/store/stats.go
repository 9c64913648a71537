package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sodav/detection-core/internal/model"
)

// ExtendDetection adds additionalDurationSec to a previously persisted
// detection that has just resumed-then-stopped again, and rolls the same
// delta into every dependent aggregate. Used when a FinalizedPlay carries
// an ExistingDetectionID.
func (s *Store) ExtendDetection(detectionID uint64, additionalDurationSec float64, artistID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var d model.TrackDetection
		if err := tx.First(&d, detectionID).Error; err != nil {
			return fmt.Errorf("reading detection %d: %w", detectionID, err)
		}

		d.PlayDurationSec += additionalDurationSec
		if err := tx.Model(&d).Update("play_duration_sec", d.PlayDurationSec).Error; err != nil {
			return fmt.Errorf("extending detection %d: %w", detectionID, err)
		}

		// Only total_duration_sec grows here — this extends a play already
		// counted once at RecordDetection time, so total_plays and
		// average_confidence must not move again.
		if err := tx.Model(&model.TrackStats{}).Where("track_id = ?", d.TrackID).
			Update("total_duration_sec", gorm.Expr("total_duration_sec + ?", additionalDurationSec)).Error; err != nil {
			return fmt.Errorf("extending track stats: %w", err)
		}
		if err := tx.Model(&model.ArtistStats{}).Where("artist_id = ?", artistID).
			Update("total_duration_sec", gorm.Expr("total_duration_sec + ?", additionalDurationSec)).Error; err != nil {
			return fmt.Errorf("extending artist stats: %w", err)
		}
		if err := tx.Model(&model.StationTrackStats{}).Where("station_id = ? AND track_id = ?", d.StationID, d.TrackID).
			Update("total_duration_sec", gorm.Expr("total_duration_sec + ?", additionalDurationSec)).Error; err != nil {
			return fmt.Errorf("extending station/track stats: %w", err)
		}
		return tx.Model(&model.StationStats{}).Where("station_id = ?", d.StationID).
			Update("total_duration_sec", gorm.Expr("total_duration_sec + ?", additionalDurationSec)).Error
	})
}

// InsertDetectionOnly persists a TrackDetection row without touching any
// aggregate. Used for plays shorter than the tracker's minimum duration
// threshold: the spec keeps the row for diagnostics (§4.7) but P5 requires
// it contribute to no statistic. The station still heard something, though,
// so its lifecycle (step 6 of §4.8) still advances.
func (s *Store) InsertDetectionOnly(d *model.TrackDetection) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("inserting short detection: %w", err)
		}
		return updateStationLifecycle(tx, d.StationID, d.DetectedAt, time.Now())
	})
}

// RecordDetection persists one TrackDetection and rolls every dependent
// aggregate forward in a single transaction, grounded on
// stats_updater.py::update_track_stats's running-average formula:
// avg_confidence = (avg*old_count + confidence) / (old_count + 1).
func (s *Store) RecordDetection(d *model.TrackDetection, artistID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return fmt.Errorf("inserting detection: %w", err)
		}

		if err := upsertTrackStats(tx, d); err != nil {
			return err
		}
		if err := upsertArtistStats(tx, artistID, d); err != nil {
			return err
		}
		if err := upsertStationTrackStats(tx, d); err != nil {
			return err
		}
		if err := upsertStationStats(tx, d); err != nil {
			return err
		}
		if err := bumpTemporalBuckets(tx, d, artistID); err != nil {
			return err
		}
		return updateStationLifecycle(tx, d.StationID, d.DetectedAt, time.Now())
	})
}

// updateStationLifecycle applies §4.8 step 6: the station that was just
// heard from is marked Active with a fresh LastDetectionTime, and any other
// Active station that hasn't produced a detection within the last hour is
// demoted to Inactive. Error and Maintenance are left alone — those reflect
// the orchestrator's own health checks, not the absence of a detection.
func updateStationLifecycle(tx *gorm.DB, stationID uint, detectedAt, now time.Time) error {
	if err := tx.Model(&model.RadioStation{}).Where("id = ?", stationID).Updates(map[string]interface{}{
		"status":              model.StationActive,
		"last_detection_time": &detectedAt,
	}).Error; err != nil {
		return fmt.Errorf("marking station %d active: %w", stationID, err)
	}

	cutoff := now.Add(-model.InactiveAfter)
	if err := tx.Model(&model.RadioStation{}).
		Where("status = ? AND COALESCE(last_detection_time, created_at) < ?", model.StationActive, cutoff).
		Update("status", model.StationInactive).Error; err != nil {
		return fmt.Errorf("transitioning stale stations to inactive: %w", err)
	}
	return nil
}

func upsertTrackStats(tx *gorm.DB, d *model.TrackDetection) error {
	var existing model.TrackStats
	err := tx.Where("track_id = ?", d.TrackID).First(&existing).Error
	switch {
	case err == nil:
		newCount := existing.TotalPlays + 1
		avg := (existing.AverageConfidence*float64(existing.TotalPlays) + d.Confidence) / float64(newCount)
		return tx.Model(&existing).Updates(map[string]interface{}{
			"total_plays":        newCount,
			"total_duration_sec": existing.TotalDurationSec + d.PlayDurationSec,
			"average_confidence": avg,
			"last_played_at":     d.DetectedAt,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.TrackStats{
			TrackID:           d.TrackID,
			TotalPlays:        1,
			TotalDurationSec:  d.PlayDurationSec,
			AverageConfidence: d.Confidence,
			LastPlayedAt:      d.DetectedAt,
		}).Error
	default:
		return fmt.Errorf("reading track stats: %w", err)
	}
}

func upsertArtistStats(tx *gorm.DB, artistID uint, d *model.TrackDetection) error {
	var existing model.ArtistStats
	err := tx.Where("artist_id = ?", artistID).First(&existing).Error
	switch {
	case err == nil:
		newCount := existing.TotalPlays + 1
		avg := (existing.AverageConfidence*float64(existing.TotalPlays) + d.Confidence) / float64(newCount)
		return tx.Model(&existing).Updates(map[string]interface{}{
			"total_plays":        newCount,
			"total_duration_sec": existing.TotalDurationSec + d.PlayDurationSec,
			"average_confidence": avg,
			"last_detected_at":   d.DetectedAt,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.ArtistStats{
			ArtistID:          artistID,
			TotalPlays:        1,
			TotalDurationSec:  d.PlayDurationSec,
			AverageConfidence: d.Confidence,
			LastDetectedAt:    d.DetectedAt,
		}).Error
	default:
		return fmt.Errorf("reading artist stats: %w", err)
	}
}

// upsertStationTrackStats never merges plays across stations, per the
// spec's first Open Question resolution.
func upsertStationTrackStats(tx *gorm.DB, d *model.TrackDetection) error {
	var existing model.StationTrackStats
	err := tx.Where("station_id = ? AND track_id = ?", d.StationID, d.TrackID).First(&existing).Error
	switch {
	case err == nil:
		return tx.Model(&existing).Updates(map[string]interface{}{
			"total_plays":        existing.TotalPlays + 1,
			"total_duration_sec": existing.TotalDurationSec + d.PlayDurationSec,
			"last_played_at":     d.DetectedAt,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.StationTrackStats{
			StationID:        d.StationID,
			TrackID:          d.TrackID,
			TotalPlays:       1,
			TotalDurationSec: d.PlayDurationSec,
			LastPlayedAt:     d.DetectedAt,
		}).Error
	default:
		return fmt.Errorf("reading station/track stats: %w", err)
	}
}

func upsertStationStats(tx *gorm.DB, d *model.TrackDetection) error {
	var existing model.StationStats
	err := tx.Where("station_id = ?", d.StationID).First(&existing).Error
	switch {
	case err == nil:
		return tx.Model(&existing).Updates(map[string]interface{}{
			"total_detections":   existing.TotalDetections + 1,
			"total_duration_sec": existing.TotalDurationSec + d.PlayDurationSec,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&model.StationStats{
			StationID:        d.StationID,
			TotalDetections:  1,
			TotalDurationSec: d.PlayDurationSec,
		}).Error
	default:
		return fmt.Errorf("reading station stats: %w", err)
	}
}

// bumpTemporalBuckets rolls the hour/day/month buckets forward for
// detections, tracks and artists, using upsert-on-conflict so concurrent
// detections in the same bucket accumulate instead of racing.
func bumpTemporalBuckets(tx *gorm.DB, d *model.TrackDetection, artistID uint) error {
	hour := d.DetectedAt.Truncate(time.Hour)
	day := time.Date(d.DetectedAt.Year(), d.DetectedAt.Month(), d.DetectedAt.Day(), 0, 0, 0, 0, d.DetectedAt.Location())
	month := time.Date(d.DetectedAt.Year(), d.DetectedAt.Month(), 1, 0, 0, 0, 0, d.DetectedAt.Location())

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "bucket_hour"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.DetectionHourly{StationID: d.StationID, BucketHour: hour, Count: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping hourly detection bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "bucket_day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.DetectionDaily{StationID: d.StationID, BucketDay: day, Count: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping daily detection bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "bucket_month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.DetectionMonthly{StationID: d.StationID, BucketMonth: month, Count: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping monthly detection bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}, {Name: "bucket_day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"plays": gorm.Expr("plays + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.TrackDaily{TrackID: d.TrackID, BucketDay: day, Plays: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping daily track bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}, {Name: "bucket_month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"plays": gorm.Expr("plays + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.TrackMonthly{TrackID: d.TrackID, BucketMonth: month, Plays: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping monthly track bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "artist_id"}, {Name: "bucket_day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"plays": gorm.Expr("plays + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.ArtistDaily{ArtistID: artistID, BucketDay: day, Plays: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping daily artist bucket: %w", err)
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "artist_id"}, {Name: "bucket_month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"plays": gorm.Expr("plays + 1"), "duration_sec": gorm.Expr("duration_sec + ?", d.PlayDurationSec)}),
	}).Create(&model.ArtistMonthly{ArtistID: artistID, BucketMonth: month, Plays: 1, DurationSec: d.PlayDurationSec}).Error; err != nil {
		return fmt.Errorf("bumping monthly artist bucket: %w", err)
	}

	return nil
}
