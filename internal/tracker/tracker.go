// Package tracker is the play-duration tracker (C7) — the stateful heart
// of the system. It decides whether a station's current identification is
// a continuation of what's already playing, a resumption of a track that
// briefly dropped out, or a genuinely new play, grounded on
// original_source/backend/detection/audio_processor/play_duration_tracker.py's
// start_tracking/update_tracking/stop_tracking/cleanup_interrupted_tracks
// state machine.
package tracker

import (
	"sync"
	"time"

	"github.com/sodav/detection-core/internal/logger"
)

// Tuning constants, identical to the Python original's defaults.
const (
	DefaultMergeThreshold  = 10 * time.Second
	DefaultMinDuration     = 5 * time.Second
	DefaultInterruptedTTL  = 60 * time.Second
	SilentDurationFallback = 15 * time.Second
	// MaxPlayDuration is the hard ceiling every finalized play is clamped to
	// (P1: 0 ≤ play_duration ≤ 1 hour). A duration outside [0, MaxPlayDuration]
	// is logged and coerced to SilentDurationFallback rather than trusted.
	MaxPlayDuration = time.Hour
)

// clampDuration enforces P1's duration bounds, coercing anything outside
// [0, MaxPlayDuration] down to the silent-duration fallback. It is applied
// to the durations the tracker measures itself (finalize and Cleanup); a
// duration reported from outside, such as capture.Window's
// CapturedDurationSec, is not passed through it.
func clampDuration(seconds float64) (float64, bool) {
	if seconds <= 0 || seconds > MaxPlayDuration.Seconds() {
		return SilentDurationFallback.Seconds(), true
	}
	return seconds, false
}

// TrackRef is the identity of a resolved track, carried through the
// tracker without it needing to know anything else about the track.
type TrackRef struct {
	TrackID  uint
	ArtistID uint
}

// Observation is what the orchestrator reports for one station on one
// cycle: either a resolved track (local or external match) or nothing
// (silence, unrecognized speech, or a failed capture).
type Observation struct {
	Track      *TrackRef
	Confidence float64
	Source     string
	Now        time.Time
}

// FinalizedPlay is a play ready to be persisted. ExistingDetectionID, when
// non-nil, names an already-persisted detection row to extend rather than
// insert a new one. The tracker never assigns a detection ID to a session,
// so the plays it produces carry nil here; a resumed play's merged duration
// arrives as a single new FinalizedPlay.
type FinalizedPlay struct {
	Station             uint
	Track               TrackRef
	DetectedAt          time.Time
	PlayDurationSec     float64
	Confidence          float64
	Source              string
	IsEstimated         bool
	ExistingDetectionID *uint64
}

// activeSession tracks one (station, track) play in progress. detectedAt is
// the true moment this play was first identified and never moves, even
// across a resume; segmentStart is where the *current* uninterrupted span
// began (reset to the resume instant on every merge) and, together with
// lastSeen, measures that span, while priorAccumSec carries forward however
// much duration earlier spans (before any interruption) already contributed.
type activeSession struct {
	station       uint
	track         TrackRef
	confidence    float64
	source        string
	detectedAt    time.Time
	segmentStart  time.Time
	lastSeen      time.Time
	priorAccumSec float64
	detectionID   *uint64
}

type interruptedSession struct {
	track          TrackRef
	confidence     float64
	source         string
	detectedAt     time.Time
	accumulatedSec float64
	interruptedAt  time.Time
	detectionID    *uint64
}

type interruptedKey struct {
	station uint
	track   uint
}

// Tracker holds every station's in-flight and recently-interrupted
// tracking state behind a single mutex — the spec calls out per-station
// contention as low enough that one lock is simpler and safe.
type Tracker struct {
	mu             sync.Mutex
	active         map[uint]*activeSession
	interrupted    map[interruptedKey]*interruptedSession
	mergeThreshold time.Duration
	minDuration    time.Duration
	interruptedTTL time.Duration
	log            *logger.Logger
}

func New(log *logger.Logger) *Tracker {
	return &Tracker{
		active:         make(map[uint]*activeSession),
		interrupted:    make(map[interruptedKey]*interruptedSession),
		mergeThreshold: DefaultMergeThreshold,
		minDuration:    DefaultMinDuration,
		interruptedTTL: DefaultInterruptedTTL,
		log:            log.With(logger.CategoryTrackManager),
	}
}

// Observe processes one cycle's identification for a station and returns a
// FinalizedPlay when a prior play has just concluded and should be
// persisted. A nil return with a nil error means "still in progress,
// nothing to persist yet".
func (t *Tracker) Observe(stationID uint, obs Observation) (*FinalizedPlay, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	active, hasActive := t.active[stationID]

	if obs.Track == nil {
		if !hasActive {
			return nil, nil
		}
		t.interrupt(stationID, active, obs.Now)
		delete(t.active, stationID)
		return nil, nil
	}

	if hasActive && active.track == *obs.Track {
		active.lastSeen = obs.Now
		if obs.Confidence > active.confidence {
			active.confidence = obs.Confidence
		}
		return nil, nil
	}

	var finalized *FinalizedPlay
	if hasActive {
		finalized = t.finalize(stationID, active)
		delete(t.active, stationID)
	}

	t.resumeOrStart(stationID, *obs.Track, obs.Confidence, obs.Source, obs.Now)
	return finalized, nil
}

// resumeOrStart merges into a recently interrupted session for the same
// (station, track) within mergeThreshold, or opens a fresh one. On a merge,
// segmentStart resets to now (the resumed span is measured from here) while
// priorAccumSec carries forward everything accumulated before the
// interruption, and detectedAt keeps pointing at the original first sighting.
func (t *Tracker) resumeOrStart(stationID uint, track TrackRef, confidence float64, source string, now time.Time) {
	key := interruptedKey{station: stationID, track: track.TrackID}
	if interrupted, ok := t.interrupted[key]; ok && now.Sub(interrupted.interruptedAt) <= t.mergeThreshold {
		delete(t.interrupted, key)
		t.active[stationID] = &activeSession{
			station:       stationID,
			track:         track,
			confidence:    confidence,
			source:        source,
			detectedAt:    interrupted.detectedAt,
			segmentStart:  now,
			lastSeen:      now,
			priorAccumSec: interrupted.accumulatedSec,
			detectionID:   interrupted.detectionID,
		}
		t.log.Debugf("station %d: resumed track %d after %.1fs gap", stationID, track.TrackID, now.Sub(interrupted.interruptedAt).Seconds())
		return
	}

	t.active[stationID] = &activeSession{
		station:      stationID,
		track:        track,
		confidence:   confidence,
		source:       source,
		detectedAt:   now,
		segmentStart: now,
		lastSeen:     now,
	}
}

// interrupt moves an active session into the interrupted pool instead of
// finalizing it immediately, so a brief silence (a DJ talking over the
// outro) doesn't fragment one play into two. The parked span only counts
// confirmed playback, up to the last heartbeat seen before the silence was
// noticed, not the instant silence was detected.
func (t *Tracker) interrupt(stationID uint, active *activeSession, now time.Time) {
	segmentDuration := active.lastSeen.Sub(active.segmentStart).Seconds()
	t.interrupted[interruptedKey{station: stationID, track: active.track.TrackID}] = &interruptedSession{
		track:          active.track,
		confidence:     active.confidence,
		source:         active.source,
		detectedAt:     active.detectedAt,
		accumulatedSec: active.priorAccumSec + segmentDuration,
		interruptedAt:  now,
		detectionID:    active.detectionID,
	}
}

// finalize computes a session's play duration and produces the
// FinalizedPlay the caller should persist. The 15s silent-duration
// coercion floor is applied, and recorded via IsEstimated, when a session's
// measured span collapses to (effectively) zero — this happens when a
// track is identified and lost within the same capture cycle — or exceeds
// the 1-hour ceiling (P1).
func (t *Tracker) finalize(stationID uint, active *activeSession) *FinalizedPlay {
	segmentDuration := active.lastSeen.Sub(active.segmentStart).Seconds()
	raw := active.priorAccumSec + segmentDuration
	duration, isEstimated := clampDuration(raw)
	if isEstimated && raw > MaxPlayDuration.Seconds() {
		t.log.Warnf("station %d track %d: play duration %.1fs exceeds the 1h ceiling, coercing to %.0fs", stationID, active.track.TrackID, raw, duration)
	}

	return &FinalizedPlay{
		Station:             stationID,
		Track:               active.track,
		DetectedAt:          active.detectedAt,
		PlayDurationSec:     duration,
		Confidence:          active.confidence,
		Source:              active.source,
		IsEstimated:         isEstimated,
		ExistingDetectionID: active.detectionID,
	}
}

// Cleanup finalizes every interrupted session whose TTL has expired,
// mirroring cleanup_interrupted_tracks's periodic sweep. Sessions shorter
// than minDuration are dropped rather than persisted, matching the
// original's min_duration_threshold filter.
func (t *Tracker) Cleanup(now time.Time) ([]*FinalizedPlay, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var finalized []*FinalizedPlay
	dropped := 0

	for key, interrupted := range t.interrupted {
		if now.Sub(interrupted.interruptedAt) < t.interruptedTTL {
			continue
		}
		if interrupted.accumulatedSec < t.minDuration.Seconds() {
			dropped++
			delete(t.interrupted, key)
			continue
		}
		duration, isEstimated := clampDuration(interrupted.accumulatedSec)
		if isEstimated {
			t.log.Warnf("station %d track %d: interrupted play duration %.1fs exceeds the 1h ceiling, coercing to %.0fs", key.station, key.track, interrupted.accumulatedSec, duration)
		}
		finalized = append(finalized, &FinalizedPlay{
			Station:             key.station,
			Track:               interrupted.track,
			DetectedAt:          interrupted.detectedAt,
			PlayDurationSec:     duration,
			Confidence:          interrupted.confidence,
			Source:              interrupted.source,
			IsEstimated:         isEstimated,
			ExistingDetectionID: interrupted.detectionID,
		})
		delete(t.interrupted, key)
	}

	if len(finalized) > 0 || dropped > 0 {
		t.log.Infof("cleanup: finalized %d interrupted tracks, dropped %d below minimum duration", len(finalized), dropped)
	}

	return finalized, dropped
}

// ActiveCount reports how many stations currently have a track in
// progress, useful for orchestrator health logging.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
