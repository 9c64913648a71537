// Package orchestrator is the station orchestrator (C9): it polls every
// configured radio station on a fixed interval with a bounded worker pool,
// grounded on tefkah-seek-tune/server/cmdHandlers.go's
// processFilesConcurrently (a buffered jobs channel drained by a worker pool
// sized to the configured concurrency, not the machine's core count, with a
// done channel as the end-of-cycle barrier, since the binding
// constraint here is outbound network/ffmpeg processes per station rather
// than CPU).
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sodav/detection-core/internal/logger"
	"github.com/sodav/detection-core/internal/model"
	"github.com/sodav/detection-core/internal/tracker"
)

// StationLister is the narrow store seam the orchestrator needs to learn
// which stations to poll and to report their lifecycle outcomes.
type StationLister interface {
	ListStations() ([]model.RadioStation, error)
	RecordCycleSuccess(stationID uint) error
	RecordCycleFailure(stationID uint) error
}

// CycleRunner is the narrow seam the orchestrator needs from the
// capture/match/recognize pipeline, letting tests exercise the polling and
// concurrency logic with a fake instead of a real *Pipeline.
type CycleRunner interface {
	RunCycle(ctx context.Context, station model.RadioStation) error
	Persist(play *tracker.FinalizedPlay) error
}

// Orchestrator runs the poll-every-station loop at a fixed interval.
type Orchestrator struct {
	stations      StationLister
	pipeline      CycleRunner
	tracker       *tracker.Tracker
	maxConcurrent int
	interval      time.Duration
	log           *logger.Logger
}

func New(stations StationLister, pipeline CycleRunner, trk *tracker.Tracker, maxConcurrent int, interval time.Duration, log *logger.Logger) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		stations:      stations,
		pipeline:      pipeline,
		tracker:       trk,
		maxConcurrent: maxConcurrent,
		interval:      interval,
		log:           log.With(logger.CategoryOrchestrator),
	}
}

// Run blocks, polling every station once per interval, until ctx is
// cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	if err := o.runCycle(ctx); err != nil {
		o.log.Warnf("initial cycle failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			o.log.Infof("orchestrator stopping, %d stations still active", o.tracker.ActiveCount())
			return ctx.Err()
		case <-ticker.C:
			if err := o.runCycle(ctx); err != nil {
				o.log.Warnf("cycle failed: %v", err)
			}
		}
	}
}

type stationJob struct {
	station model.RadioStation
}

// runCycle polls every station once, bounded to maxConcurrent in-flight
// stations at a time, then sweeps expired interruptions.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	stations, err := o.stations.ListStations()
	if err != nil {
		return err
	}

	jobs := make(chan stationJob, len(stations))
	for _, s := range stations {
		jobs <- stationJob{station: s}
	}
	close(jobs)

	workers := o.maxConcurrent
	if workers > len(stations) {
		workers = len(stations)
	}
	if workers == 0 {
		workers = 1
	}

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for job := range jobs {
				o.pollStation(ctx, job.station)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	finalized, dropped := o.tracker.Cleanup(time.Now())
	if len(finalized) > 0 || dropped > 0 {
		o.log.Infof("cleanup finalized %d plays, dropped %d short interruptions", len(finalized), dropped)
		for _, play := range finalized {
			if err := o.pipeline.Persist(play); err != nil {
				o.log.Warnf("persisting cleanup-finalized play for station %d track %d: %v", play.Station, play.Track.TrackID, err)
			}
		}
	}

	return nil
}

// pollStation runs one capture/identify cycle for station and tags the
// cycle's failure and completion log lines with a per-cycle correlation ID.
// The ID is not passed to the pipeline, so the pipeline's own capture, match
// and persist log lines do not carry it.
func (o *Orchestrator) pollStation(ctx context.Context, station model.RadioStation) {
	cycleID := uuid.NewString()
	if err := o.pipeline.RunCycle(ctx, station); err != nil {
		o.log.Warnf("[%s] station %d (%s) cycle failed: %v", cycleID, station.ID, station.Name, err)
		if recErr := o.stations.RecordCycleFailure(station.ID); recErr != nil {
			o.log.Warnf("recording failure for station %d: %v", station.ID, recErr)
		}
		return
	}
	if err := o.stations.RecordCycleSuccess(station.ID); err != nil {
		o.log.Warnf("recording success for station %d: %v", station.ID, err)
	}
	o.log.Debugf("[%s] station %d (%s) cycle complete", cycleID, station.ID, station.Name)
}
