package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav/detection-core/internal/model"
)

func TestListStationsReturnsOnlyActive(t *testing.T) {
	st := testStore(t)

	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Live", StreamURL: "http://a", Status: model.StationActive}).Error)
	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Down", StreamURL: "http://b", Status: model.StationError}).Error)
	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Dormant", StreamURL: "http://c", Status: model.StationInactive}).Error)

	stations, err := st.ListStations()
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "Live", stations[0].Name)
}

func TestRecordCycleFailureMarksErrorAfterThreeStrikes(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Live", StreamURL: "http://a", Status: model.StationActive}).Error)

	var station model.RadioStation
	require.NoError(t, st.DB.Where("name = ?", "Live").First(&station).Error)

	require.NoError(t, st.RecordCycleFailure(station.ID))
	require.NoError(t, st.RecordCycleFailure(station.ID))

	var reloaded model.RadioStation
	require.NoError(t, st.DB.First(&reloaded, station.ID).Error)
	assert.Equal(t, model.StationActive, reloaded.Status, "two strikes must not yet demote the station")

	require.NoError(t, st.RecordCycleFailure(station.ID))
	require.NoError(t, st.DB.First(&reloaded, station.ID).Error)
	assert.Equal(t, model.StationError, reloaded.Status)
	assert.Equal(t, 3, reloaded.ConsecutiveFail)
}

func TestRecordCycleSuccessResetsFailuresAndReactivates(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Live", StreamURL: "http://a", Status: model.StationError, ConsecutiveFail: 3}).Error)

	var station model.RadioStation
	require.NoError(t, st.DB.Where("name = ?", "Live").First(&station).Error)

	require.NoError(t, st.RecordCycleSuccess(station.ID))

	var reloaded model.RadioStation
	require.NoError(t, st.DB.First(&reloaded, station.ID).Error)
	assert.Equal(t, model.StationActive, reloaded.Status)
	assert.Equal(t, 0, reloaded.ConsecutiveFail)
}

func TestRecordDetectionMarksStationActiveAndDemotesStaleOnes(t *testing.T) {
	st := testStore(t)

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, st.DB.Create(&model.RadioStation{Name: "Fresh", StreamURL: "http://a", Status: model.StationActive}).Error)
	require.NoError(t, st.DB.Create(&model.RadioStation{
		Name: "Stale", StreamURL: "http://b", Status: model.StationActive, LastDetectionTime: &stale,
	}).Error)

	var fresh, staleStation model.RadioStation
	require.NoError(t, st.DB.Where("name = ?", "Fresh").First(&fresh).Error)
	require.NoError(t, st.DB.Where("name = ?", "Stale").First(&staleStation).Error)

	artist, err := st.GetOrCreateArtist("Justice")
	require.NoError(t, err)
	track, err := st.GetOrCreateTrack(TrackInfo{Title: "Genesis", ArtistName: "Justice"})
	require.NoError(t, err)

	d := &model.TrackDetection{StationID: fresh.ID, TrackID: track.ID, DetectedAt: time.Now(), PlayDurationSec: 30, Confidence: 0.9}
	require.NoError(t, st.RecordDetection(d, artist.ID))

	var reloadedFresh, reloadedStale model.RadioStation
	require.NoError(t, st.DB.First(&reloadedFresh, fresh.ID).Error)
	require.NoError(t, st.DB.First(&reloadedStale, staleStation.ID).Error)

	assert.Equal(t, model.StationActive, reloadedFresh.Status)
	require.NotNil(t, reloadedFresh.LastDetectionTime)
	assert.WithinDuration(t, d.DetectedAt, *reloadedFresh.LastDetectionTime, time.Second)

	assert.Equal(t, model.StationInactive, reloadedStale.Status, "a station silent for over an hour must be demoted")
}
