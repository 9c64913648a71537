package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav/detection-core/internal/logger"
)

func testTracker() *Tracker {
	cfg := logger.DefaultConfig()
	cfg.Colorize = false
	return New(logger.New(cfg))
}

func TestObserveHeartbeatsSameTrackWithoutFinalizing(t *testing.T) {
	tr := testTracker()
	track := TrackRef{TrackID: 1}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	finalized, err := tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	assert.Nil(t, finalized)

	finalized, err = tr.Observe(10, Observation{Track: &track, Confidence: 0.95, Source: "local_exact", Now: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Nil(t, finalized)
	assert.Equal(t, 1, tr.ActiveCount())
}

func TestObserveFinalizesOnExplicitTrackChange(t *testing.T) {
	tr := testTracker()
	first := TrackRef{TrackID: 1}
	second := TrackRef{TrackID: 2}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &first, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	_, err = tr.Observe(10, Observation{Track: &first, Confidence: 0.9, Source: "local_exact", Now: base.Add(180 * time.Second)})
	require.NoError(t, err)

	finalized, err := tr.Observe(10, Observation{Track: &second, Confidence: 0.9, Source: "local_exact", Now: base.Add(185 * time.Second)})
	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.Equal(t, uint(1), finalized.Track.TrackID)
	assert.InDelta(t, 180, finalized.PlayDurationSec, 0.01)
	assert.False(t, finalized.IsEstimated)
}

func TestObserveMergesResumeWithinThreshold(t *testing.T) {
	tr := testTracker()
	track := TrackRef{TrackID: 1}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	_, err = tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base.Add(60 * time.Second)})
	require.NoError(t, err)

	// Silence for 5s (under the 10s merge threshold) interrupts tracking.
	_, err = tr.Observe(10, Observation{Track: nil, Now: base.Add(65 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 0, tr.ActiveCount())

	// Same track resumes before the merge threshold elapses.
	finalized, err := tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base.Add(70 * time.Second)})
	require.NoError(t, err)
	assert.Nil(t, finalized, "a resumed session should not finalize immediately")
	assert.Equal(t, 1, tr.ActiveCount())

	// A heartbeat confirms the resumed span is still playing at t=100...
	_, err = tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base.Add(100 * time.Second)})
	require.NoError(t, err)

	// ...then finalize explicitly and confirm the merged duration spans both
	// uninterrupted segments (60s + 30s) while excluding the silent gap.
	other := TrackRef{TrackID: 2}
	finalized, err = tr.Observe(10, Observation{Track: &other, Confidence: 0.9, Source: "local_exact", Now: base.Add(100 * time.Second)})
	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.InDelta(t, 90, finalized.PlayDurationSec, 0.01)
}

func TestCleanupFinalizesExpiredInterruptions(t *testing.T) {
	tr := testTracker()
	track := TrackRef{TrackID: 1}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	_, err = tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base.Add(20 * time.Second)})
	require.NoError(t, err)

	_, err = tr.Observe(10, Observation{Track: nil, Now: base.Add(25 * time.Second)})
	require.NoError(t, err)

	finalized, dropped := tr.Cleanup(base.Add(25*time.Second + DefaultInterruptedTTL + time.Second))
	require.Len(t, finalized, 1)
	assert.Equal(t, 0, dropped)
	assert.InDelta(t, 20, finalized[0].PlayDurationSec, 0.01)
}

func TestCleanupDropsShortInterruptionsBelowMinDuration(t *testing.T) {
	tr := testTracker()
	track := TrackRef{TrackID: 1}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	_, err = tr.Observe(10, Observation{Track: &track, Confidence: 0.9, Source: "local_exact", Now: base.Add(2 * time.Second)})
	require.NoError(t, err)

	_, err = tr.Observe(10, Observation{Track: nil, Now: base.Add(3 * time.Second)})
	require.NoError(t, err)

	finalized, dropped := tr.Cleanup(base.Add(3*time.Second + DefaultInterruptedTTL + time.Second))
	assert.Len(t, finalized, 0)
	assert.Equal(t, 1, dropped)
}

func TestObserveClampsDurationExceedingOneHour(t *testing.T) {
	tr := testTracker()
	first := TrackRef{TrackID: 1}
	second := TrackRef{TrackID: 2}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &first, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	_, err = tr.Observe(10, Observation{Track: &first, Confidence: 0.9, Source: "local_exact", Now: base.Add(2 * time.Hour)})
	require.NoError(t, err)

	finalized, err := tr.Observe(10, Observation{Track: &second, Confidence: 0.9, Source: "local_exact", Now: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.True(t, finalized.IsEstimated)
	assert.InDelta(t, SilentDurationFallback.Seconds(), finalized.PlayDurationSec, 0.01)
}

func TestObserveAppliesSilentDurationFallback(t *testing.T) {
	tr := testTracker()
	first := TrackRef{TrackID: 1}
	second := TrackRef{TrackID: 2}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := tr.Observe(10, Observation{Track: &first, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)

	// Immediately replaced with no elapsed time: duration collapses to zero
	// and must be coerced to the 15s floor.
	finalized, err := tr.Observe(10, Observation{Track: &second, Confidence: 0.9, Source: "local_exact", Now: base})
	require.NoError(t, err)
	require.NotNil(t, finalized)
	assert.True(t, finalized.IsEstimated)
	assert.InDelta(t, SilentDurationFallback.Seconds(), finalized.PlayDurationSec, 0.01)
}
