package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/lgadock/internal/config"
	"github.com/cwbudde/lgadock/internal/dock"
	"github.com/cwbudde/lgadock/internal/pipeline"
	"github.com/cwbudde/lgadock/internal/store"
)

// progressInterval throttles SSE progress events.
const progressInterval = 500 * time.Millisecond

// runJob executes a docking job in the background and stores its result.
func runJob(ctx context.Context, jm *JobManager, st *store.FSStore, metrics *Metrics, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if ctx.Err() != nil {
		markJobCancelled(jm, metrics, jobID)
		return ctx.Err()
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	metrics.setJobCounts(jm.CountByState())
	slog.Info("Starting job", "job_id", jobID, "ligand", job.Request.Ligand, "grid", job.Request.Grid)

	cfg := config.Job{
		Ligand:        job.Request.Ligand,
		Grid:          job.Request.Grid,
		Reference:     job.Request.Reference,
		DataDir:       st.BaseDir(),
		CompressTrace: job.Request.CompressTrace,
		Docking:       job.Request.Params,
	}

	obs := newJobObserver(jm, metrics, jobID)
	progressDone := make(chan struct{})
	var monitor sync.WaitGroup
	hooks := pipeline.Hooks{
		Observer: obs,
		Started: func(e *dock.Engine) {
			monitor.Add(1)
			go func() {
				defer monitor.Done()
				monitorProgress(ctx, jm, e, jobID, progressDone)
			}()
		},
	}

	start := time.Now()
	result, err := pipeline.Run(ctx, cfg, st, jobID, hooks)
	close(progressDone)
	monitor.Wait()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, metrics, jobID)
		return err
	default:
		markJobFailed(jm, metrics, jobID, err)
		return err
	}

	endTime := time.Now()
	best, _ := result.State.Best()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Progress = dock.Progress{Percent: 100, TotalEvals: result.State.TotalEvals}
		j.BestEnergy = &best.Energy
		j.BestRun = best.Run
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}
	metrics.BestEnergy.WithLabelValues(jobID).Set(best.Energy)
	metrics.jobFinished(StateCompleted, time.Since(start))
	metrics.setJobCounts(jm.CountByState())

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"best_energy", best.Energy,
		"best_run", best.Run,
		"total_evals", result.State.TotalEvals,
	)

	job, _ = jm.GetJob(jobID)
	jm.broadcaster.Broadcast(newProgressEvent(job))
	return nil
}

// monitorProgress periodically broadcasts progress events during docking
func monitorProgress(ctx context.Context, jm *JobManager, e *dock.Engine, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			progress := e.Progress()
			var snapshot Job
			err := jm.UpdateJob(jobID, func(j *Job) {
				j.Progress = progress
				snapshot = *j
			})
			if err != nil {
				return
			}
			jm.broadcaster.Broadcast(newProgressEvent(snapshot))
		}
	}
}

// jobObserver folds generation summaries of all runs into the job record
// and the server metrics.
type jobObserver struct {
	jm      *JobManager
	metrics *Metrics
	jobID   string

	mu        sync.Mutex
	lastEvals map[int]int
}

func newJobObserver(jm *JobManager, metrics *Metrics, jobID string) *jobObserver {
	return &jobObserver{
		jm:        jm,
		metrics:   metrics,
		jobID:     jobID,
		lastEvals: make(map[int]int),
	}
}

// OnGeneration implements dock.Observer.
func (o *jobObserver) OnGeneration(s dock.GenerationSummary) {
	o.mu.Lock()
	delta := s.Evals - o.lastEvals[s.Run]
	o.lastEvals[s.Run] = s.Evals
	o.mu.Unlock()

	o.metrics.Evaluations.Add(float64(delta))
	o.metrics.Generations.Inc()

	improved := false
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		if s.Generation > j.Generation {
			j.Generation = s.Generation
		}
		if j.BestEnergy == nil || s.BestEnergy < *j.BestEnergy {
			energy := s.BestEnergy
			j.BestEnergy = &energy
			j.BestRun = s.Run
			improved = true
		}
	})
	if improved {
		o.metrics.BestEnergy.WithLabelValues(o.jobID).Set(s.BestEnergy)
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, metrics *Metrics, jobID string, err error) {
	finishJob(jm, metrics, jobID, StateFailed, err.Error())
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, metrics *Metrics, jobID string) {
	finishJob(jm, metrics, jobID, StateCancelled, "")
	slog.Info("Job cancelled", "job_id", jobID)
}

func finishJob(jm *JobManager, metrics *Metrics, jobID string, state JobState, msg string) {
	endTime := time.Now()
	var snapshot Job
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Error = msg
		j.EndTime = &endTime
		snapshot = *j
	})
	if err != nil {
		return
	}
	metrics.jobFinished(state, endTime.Sub(snapshot.StartTime))
	metrics.setJobCounts(jm.CountByState())
	jm.broadcaster.Broadcast(newProgressEvent(snapshot))
}
