package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/sodav/detection-core/internal/capture"
	"github.com/sodav/detection-core/internal/features"
	"github.com/sodav/detection-core/internal/logger"
	"github.com/sodav/detection-core/internal/match"
	"github.com/sodav/detection-core/internal/model"
	"github.com/sodav/detection-core/internal/recognize"
	"github.com/sodav/detection-core/internal/store"
	"github.com/sodav/detection-core/internal/tracker"
)

// Resolver is the narrow store seam the pipeline needs to turn a matched or
// recognized candidate into a durable (artist, track) pair.
type Resolver interface {
	GetOrCreateTrack(info store.TrackInfo) (*model.Track, error)
	GetTrackByID(id uint) (*model.Track, error)
}

// FingerprintWriter registers reference fingerprints for a track freshly
// resolved through an external recognizer, so the next time the same
// recording plays the local matcher finds it first.
type FingerprintWriter interface {
	AttachFingerprints(trackID uint, couples []store.Couple, contentHash uint64) error
}

// DetectionRecorder is the narrow store seam for persisting a finalized
// play, following tracker.FinalizedPlay's ExistingDetectionID routing.
type DetectionRecorder interface {
	RecordDetection(d *model.TrackDetection, artistID uint) error
	ExtendDetection(detectionID uint64, additionalDurationSec float64, artistID uint) error
	InsertDetectionOnly(d *model.TrackDetection) error
}

// Pipeline runs one station's capture -> identify -> track -> persist cycle,
// grounded on the original's process_station_audio orchestration of
// detect_via_local_database → detect_via_fingerprint_db →
// detect_via_external_services.
type Pipeline struct {
	capturer   *capture.Capturer
	matcher    *match.Matcher
	recognizer *recognize.Chain
	tracker    *tracker.Tracker
	resolver   Resolver
	fpWriter   FingerprintWriter
	recorder   DetectionRecorder
	scratchDir string
	log        *logger.Logger
}

func NewPipeline(
	capturer *capture.Capturer,
	matcher *match.Matcher,
	recognizer *recognize.Chain,
	trk *tracker.Tracker,
	resolver Resolver,
	fpWriter FingerprintWriter,
	recorder DetectionRecorder,
	scratchDir string,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		capturer:   capturer,
		matcher:    matcher,
		recognizer: recognizer,
		tracker:    trk,
		resolver:   resolver,
		fpWriter:   fpWriter,
		recorder:   recorder,
		scratchDir: scratchDir,
		log:        log.With(logger.CategoryDetection),
	}
}

// RunCycle captures one window from station, identifies it, feeds the
// result to the tracker and persists anything the tracker finalizes as a
// consequence.
func (p *Pipeline) RunCycle(ctx context.Context, station model.RadioStation) error {
	window, reason, err := p.capturer.Capture(ctx, station.ID, station.StreamURL)
	if err != nil {
		return fmt.Errorf("capturing station %d: %w", station.ID, err)
	}
	if window == nil {
		p.log.Debugf("station %d: capture produced nothing (%s)", station.ID, reason)
		return p.observeAndPersist(station.ID, tracker.Observation{Now: time.Now()})
	}

	feat, err := features.Extract(window.Samples, window.SampleRate)
	if err != nil {
		return fmt.Errorf("extracting features for station %d: %w", station.ID, err)
	}

	if feat.Segment != features.SegmentMusic {
		return p.observeAndPersist(station.ID, tracker.Observation{Now: window.Captured})
	}

	ref, confidence, source, err := p.identify(ctx, station, window, feat)
	if err != nil {
		return fmt.Errorf("identifying station %d: %w", station.ID, err)
	}

	return p.observeAndPersist(station.ID, tracker.Observation{
		Track:      ref,
		Confidence: confidence,
		Source:     source,
		Now:        window.Captured,
	})
}

// identify tries the local matcher first, then falls through to the
// external recognizer chain, registering fresh fingerprints for anything
// newly resolved externally so the local matcher finds it next time.
func (p *Pipeline) identify(ctx context.Context, station model.RadioStation, window *capture.Window, feat *features.Features) (*tracker.TrackRef, float64, string, error) {
	if local, err := p.matcher.Match(feat); err != nil {
		return nil, 0, "", err
	} else if local != nil {
		track, err := p.resolver.GetTrackByID(local.TrackID)
		if err != nil {
			return nil, 0, "", err
		}
		return &tracker.TrackRef{TrackID: track.ID, ArtistID: track.ArtistID}, local.Confidence, local.Source, nil
	}

	samplePath, err := p.writeScratchWav(station.ID, window)
	if err != nil {
		p.log.Warnf("writing scratch wav for station %d: %v", station.ID, err)
		return nil, 0, "", nil
	}
	defer os.Remove(samplePath)

	candidate, err := p.recognizer.Recognize(ctx, samplePath, feat.DurationSec)
	if err != nil {
		return nil, 0, "", err
	}
	if candidate == nil {
		return nil, 0, "", nil
	}

	track, err := p.resolver.GetOrCreateTrack(store.TrackInfo{
		Title:          candidate.Title,
		ArtistName:     candidate.Artist,
		Album:          candidate.Album,
		ISRC:           candidate.ISRC,
		Label:          candidate.Label,
		ReleaseDate:    candidate.ReleaseDate,
		DurationMs:     candidate.DurationMs,
		MusicBrainzID:  candidate.MusicBrainzID,
		ExternalSource: candidate.Source,
	})
	if err != nil {
		return nil, 0, "", err
	}

	if track.PrimaryFpHashes == 0 {
		couples := make([]store.Couple, 0)
		for hash, cs := range feat.Fingerprint {
			for _, c := range cs {
				couples = append(couples, store.Couple{Hash: hash, OffsetMs: c.OffsetMs})
			}
		}
		if len(couples) > 0 {
			if err := p.fpWriter.AttachFingerprints(track.ID, couples, feat.ContentHash); err != nil {
				p.log.Warnf("attaching fingerprints for newly resolved track %d: %v", track.ID, err)
			}
		}
	}

	return &tracker.TrackRef{TrackID: track.ID, ArtistID: track.ArtistID}, candidate.Confidence, candidate.Source, nil
}

func (p *Pipeline) observeAndPersist(stationID uint, obs tracker.Observation) error {
	finalized, err := p.tracker.Observe(stationID, obs)
	if err != nil {
		return err
	}
	if finalized != nil {
		if err := p.Persist(finalized); err != nil {
			return fmt.Errorf("persisting finalized play for station %d: %w", stationID, err)
		}
	}
	return nil
}

// Persist routes a finalized play to RecordDetection (a brand new play that
// clears the minimum-duration floor), InsertDetectionOnly (a brand new play
// that doesn't — P5 keeps the row for diagnostics but it must not move any
// aggregate), or ExtendDetection (a play carrying an ExistingDetectionID,
// which grows that already-persisted row rather than inserting a new one).
func (p *Pipeline) Persist(play *tracker.FinalizedPlay) error {
	if play.ExistingDetectionID != nil {
		if err := p.recorder.ExtendDetection(*play.ExistingDetectionID, play.PlayDurationSec, play.Track.ArtistID); err != nil {
			p.log.Warnf("extending detection %d: %v", *play.ExistingDetectionID, err)
			return err
		}
		return nil
	}

	d := &model.TrackDetection{
		StationID:       play.Station,
		TrackID:         play.Track.TrackID,
		DetectedAt:      play.DetectedAt,
		PlayDurationSec: play.PlayDurationSec,
		Confidence:      play.Confidence,
		Source:          play.Source,
		IsEstimated:     play.IsEstimated,
	}

	if play.PlayDurationSec < tracker.DefaultMinDuration.Seconds() {
		if err := p.recorder.InsertDetectionOnly(d); err != nil {
			p.log.Warnf("inserting short detection for track %d on station %d: %v", play.Track.TrackID, play.Station, err)
			return err
		}
		return nil
	}

	if err := p.recorder.RecordDetection(d, play.Track.ArtistID); err != nil {
		p.log.Warnf("recording detection for track %d on station %d: %v", play.Track.TrackID, play.Station, err)
		return err
	}
	return nil
}

// writeScratchWav encodes a captured window back to a mono 16-bit PCM WAV
// file so the external recognizers (fpcalc, ffprobe) have something to
// shell out against, mirroring the teacher's audio/processor.go encode step
// in reverse.
func (p *Pipeline) writeScratchWav(stationID uint, window *capture.Window) (string, error) {
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	path := filepath.Join(p.scratchDir, fmt.Sprintf("station-%d-sample-%d.wav", stationID, time.Now().UnixNano()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating scratch wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, window.SampleRate, 16, 1, 1)
	intData := make([]int, len(window.Samples))
	for i, s := range window.Samples {
		intData[i] = int(s * 32767)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{SampleRate: window.SampleRate, NumChannels: 1},
		Data:   intData,
	}
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("encoding scratch wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("closing scratch wav: %w", err)
	}
	return path, nil
}
