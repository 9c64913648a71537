package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sodav/detection-core/internal/model"
)

func TestRecordDetectionRollsUpAggregates(t *testing.T) {
	st := testStore(t)

	artist, err := st.GetOrCreateArtist("Justice")
	require.NoError(t, err)
	track, err := st.GetOrCreateTrack(TrackInfo{Title: "Genesis", ArtistName: "Justice"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	d1 := &model.TrackDetection{StationID: 1, TrackID: track.ID, DetectedAt: now, PlayDurationSec: 120, Confidence: 0.8}
	require.NoError(t, st.RecordDetection(d1, artist.ID))

	d2 := &model.TrackDetection{StationID: 1, TrackID: track.ID, DetectedAt: now.Add(time.Hour), PlayDurationSec: 60, Confidence: 0.6}
	require.NoError(t, st.RecordDetection(d2, artist.ID))

	var ts model.TrackStats
	require.NoError(t, st.DB.Where("track_id = ?", track.ID).First(&ts).Error)
	assert.Equal(t, 2, ts.TotalPlays)
	assert.InDelta(t, 180, ts.TotalDurationSec, 0.01)
	assert.InDelta(t, 0.7, ts.AverageConfidence, 0.001)

	var ss model.StationStats
	require.NoError(t, st.DB.Where("station_id = ?", uint(1)).First(&ss).Error)
	assert.Equal(t, 2, ss.TotalDetections)
	assert.InDelta(t, 180, ss.TotalDurationSec, 0.01)

	var as model.ArtistStats
	require.NoError(t, st.DB.Where("artist_id = ?", artist.ID).First(&as).Error)
	assert.Equal(t, 2, as.TotalPlays)
	assert.InDelta(t, 180, as.TotalDurationSec, 0.01)
	assert.InDelta(t, 0.7, as.AverageConfidence, 0.001)
	assert.Equal(t, d2.DetectedAt, as.LastDetectedAt)
}

func TestExtendDetectionGrowsDurationWithoutDoubleCountingPlays(t *testing.T) {
	st := testStore(t)

	artist, err := st.GetOrCreateArtist("Justice")
	require.NoError(t, err)
	track, err := st.GetOrCreateTrack(TrackInfo{Title: "Genesis", ArtistName: "Justice"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	d := &model.TrackDetection{StationID: 1, TrackID: track.ID, DetectedAt: now, PlayDurationSec: 30, Confidence: 0.9}
	require.NoError(t, st.RecordDetection(d, artist.ID))

	require.NoError(t, st.ExtendDetection(d.ID, 45, artist.ID))

	var reloaded model.TrackDetection
	require.NoError(t, st.DB.First(&reloaded, d.ID).Error)
	assert.InDelta(t, 75, reloaded.PlayDurationSec, 0.01)

	var ts model.TrackStats
	require.NoError(t, st.DB.Where("track_id = ?", track.ID).First(&ts).Error)
	assert.Equal(t, 1, ts.TotalPlays, "extending a play must not count as a second play")
	assert.InDelta(t, 75, ts.TotalDurationSec, 0.01)
	assert.InDelta(t, 0.9, ts.AverageConfidence, 0.001, "extending must not perturb the running average")

	var stt model.StationTrackStats
	require.NoError(t, st.DB.Where("station_id = ? AND track_id = ?", uint(1), track.ID).First(&stt).Error)
	assert.Equal(t, 1, stt.TotalPlays)
	assert.InDelta(t, 75, stt.TotalDurationSec, 0.01)

	var ss model.StationStats
	require.NoError(t, st.DB.Where("station_id = ?", uint(1)).First(&ss).Error)
	assert.Equal(t, 1, ss.TotalDetections)
	assert.InDelta(t, 75, ss.TotalDurationSec, 0.01)
}

func TestInsertDetectionOnlyPersistsRowWithoutTouchingAggregates(t *testing.T) {
	st := testStore(t)

	track, err := st.GetOrCreateTrack(TrackInfo{Title: "Genesis", ArtistName: "Justice"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	d := &model.TrackDetection{StationID: 1, TrackID: track.ID, DetectedAt: now, PlayDurationSec: 3, Confidence: 0.9}
	require.NoError(t, st.InsertDetectionOnly(d))
	assert.NotZero(t, d.ID, "the row must still be persisted for diagnostics")

	var ts model.TrackStats
	err = st.DB.Where("track_id = ?", track.ID).First(&ts).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "a sub-threshold play must not create a TrackStats row")

	var ss model.StationStats
	err = st.DB.Where("station_id = ?", uint(1)).First(&ss).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "a sub-threshold play must not create a StationStats row")
}
