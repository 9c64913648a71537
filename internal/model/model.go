// Package model holds the persistent data types shared by every component
// of the detection core: artists, tracks, fingerprints, stations, detections
// and the rolling statistics tables. GORM tags drive schema and indexing the
// way the teacher's storage layer does.
package model

import (
	"time"
)

// Artist is a unique performing entity, deduplicated by normalized name.
type Artist struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Track is a unique recording. ISRC, when known, is the strongest dedup key;
// absent an ISRC a track is deduplicated on (ArtistID, Title).
type Track struct {
	ID              uint   `gorm:"primaryKey"`
	Title           string `gorm:"not null;index:idx_track_title_artist"`
	ArtistID        uint   `gorm:"not null;index:idx_track_title_artist"`
	Artist          Artist `gorm:"foreignKey:ArtistID"`
	Album           string
	ISRC            string `gorm:"index"`
	Label           string
	ReleaseDate     string
	DurationMs      int
	MusicBrainzID   string
	ExternalSource  string // "acoustid", "musicbrainz", "audd", "" for local-only
	PrimaryFpHashes int    // count of fingerprint hashes registered for this track
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fingerprint is one (hash, offset) couple extracted from a reference
// recording, used for exact local matching. ContentHash is the fixed-length
// hash used for approximate (Hamming) matching, stored once per track on the
// first fingerprint insert and repeated for lookup convenience.
type Fingerprint struct {
	ID          uint64 `gorm:"primaryKey"`
	Hash        uint32 `gorm:"not null;index:idx_fp_hash"`
	TrackID     uint   `gorm:"not null;index"`
	OffsetMs    uint32 `gorm:"not null"`
	ContentHash uint64 `gorm:"index:idx_fp_content_hash"`
}

// StationStatus mirrors the lifecycle a radio station cycles through as the
// orchestrator polls it.
type StationStatus string

const (
	StationActive      StationStatus = "active"
	StationInactive    StationStatus = "inactive"
	StationError       StationStatus = "error"
	StationMaintenance StationStatus = "maintenance"
)

// InactiveAfter is how long a station can go without a detection before the
// stats updater (C8, step 6) transitions it to Inactive.
const InactiveAfter = time.Hour

// RadioStation is a configured stream endpoint the orchestrator polls.
type RadioStation struct {
	ID                uint   `gorm:"primaryKey"`
	Name              string `gorm:"not null"`
	StreamURL         string `gorm:"not null"`
	Status            StationStatus
	ConsecutiveFail   int
	LastCheck         *time.Time
	LastSuccess       *time.Time
	LastDetectionTime *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrackDetection is one recorded play: a track identified on a station for a
// contiguous (possibly merged) span of time.
type TrackDetection struct {
	ID              uint64 `gorm:"primaryKey"`
	StationID       uint   `gorm:"not null;index:idx_detection_station_time"`
	TrackID         uint   `gorm:"not null;index"`
	DetectedAt      time.Time
	PlayDurationSec float64
	Confidence      float64
	Source          string // "local_exact", "local_approximate", "acoustid", "musicbrainz", "audd"
	// IsEstimated marks a play whose duration was coerced to the 15s silent
	// fallback floor rather than measured from capture heartbeats.
	IsEstimated bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TrackStats is the running aggregate for one track across all stations.
type TrackStats struct {
	TrackID           uint `gorm:"primaryKey"`
	TotalPlays        int
	TotalDurationSec  float64
	AverageConfidence float64
	LastPlayedAt      time.Time
	UpdatedAt         time.Time
}

// ArtistStats mirrors TrackStats aggregated to artist granularity: the
// spec calls out the same four fields (total_plays, total_play_time,
// last_detected, avg_confidence) for both.
type ArtistStats struct {
	ArtistID          uint `gorm:"primaryKey"`
	TotalPlays        int
	TotalDurationSec  float64
	AverageConfidence float64
	LastDetectedAt    time.Time
	UpdatedAt         time.Time
}

// StationTrackStats tracks a (station, track) pair. Per the spec's first
// Open Question resolution, plays on different stations are never merged
// into one another here even when they overlap in time.
type StationTrackStats struct {
	StationID        uint `gorm:"primaryKey"`
	TrackID          uint `gorm:"primaryKey"`
	TotalPlays       int
	TotalDurationSec float64
	LastPlayedAt     time.Time
	UpdatedAt        time.Time
}

// StationStats is the per-station rollup used for health/activity reporting.
type StationStats struct {
	StationID        uint `gorm:"primaryKey"`
	TotalDetections  int
	TotalDurationSec float64
	UpdatedAt        time.Time
}

// DetectionHourly/Daily/Monthly bucket detection counts for temporal reports.
type DetectionHourly struct {
	ID          uint64    `gorm:"primaryKey"`
	StationID   uint      `gorm:"not null;uniqueIndex:idx_dh_bucket"`
	BucketHour  time.Time `gorm:"uniqueIndex:idx_dh_bucket"`
	Count       int
	DurationSec float64
}

type DetectionDaily struct {
	ID          uint64    `gorm:"primaryKey"`
	StationID   uint      `gorm:"not null;uniqueIndex:idx_dd_bucket"`
	BucketDay   time.Time `gorm:"uniqueIndex:idx_dd_bucket"`
	Count       int
	DurationSec float64
}

type DetectionMonthly struct {
	ID          uint64    `gorm:"primaryKey"`
	StationID   uint      `gorm:"not null;uniqueIndex:idx_dm_bucket"`
	BucketMonth time.Time `gorm:"uniqueIndex:idx_dm_bucket"`
	Count       int
	DurationSec float64
}

// TrackDaily/Monthly bucket per-track play counts independent of station.
type TrackDaily struct {
	ID          uint64    `gorm:"primaryKey"`
	TrackID     uint      `gorm:"not null;uniqueIndex:idx_td_bucket"`
	BucketDay   time.Time `gorm:"uniqueIndex:idx_td_bucket"`
	Plays       int
	DurationSec float64
}

type TrackMonthly struct {
	ID          uint64    `gorm:"primaryKey"`
	TrackID     uint      `gorm:"not null;uniqueIndex:idx_tm_bucket"`
	BucketMonth time.Time `gorm:"uniqueIndex:idx_tm_bucket"`
	Plays       int
	DurationSec float64
}

// ArtistDaily/Monthly mirror the track buckets at artist granularity.
type ArtistDaily struct {
	ID          uint64    `gorm:"primaryKey"`
	ArtistID    uint      `gorm:"not null;uniqueIndex:idx_ad_bucket"`
	BucketDay   time.Time `gorm:"uniqueIndex:idx_ad_bucket"`
	Plays       int
	DurationSec float64
}

type ArtistMonthly struct {
	ID          uint64    `gorm:"primaryKey"`
	ArtistID    uint      `gorm:"not null;uniqueIndex:idx_am_bucket"`
	BucketMonth time.Time `gorm:"uniqueIndex:idx_am_bucket"`
	Plays       int
	DurationSec float64
}

// AllModels lists every type AutoMigrate must see, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Artist{},
		&Track{},
		&Fingerprint{},
		&RadioStation{},
		&TrackDetection{},
		&TrackStats{},
		&ArtistStats{},
		&StationTrackStats{},
		&StationStats{},
		&DetectionHourly{},
		&DetectionDaily{},
		&DetectionMonthly{},
		&TrackDaily{},
		&TrackMonthly{},
		&ArtistDaily{},
		&ArtistMonthly{},
	}
}
