package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/pkg/scheduler"
)

type pollRecorder struct {
	ready    int
	noData   int
	failed   int
	progress []int
	hints    int
}

func (r *pollRecorder) callbacks() PollCallbacks {
	return PollCallbacks{
		OnReady:  func(importrun.ImportRun) { r.ready++ },
		OnNoData: func(importrun.ImportRun) { r.noData++ },
		OnFailed: func(importrun.ImportRun) { r.failed++ },
		OnProgress: func(_ importrun.ImportRun, progress int) {
			r.progress = append(r.progress, progress)
		},
		OnSlowProgress: func() { r.hints++ },
	}
}

func (r *pollRecorder) terminal() int {
	return r.ready + r.noData + r.failed
}

func TestPoll_ImmediateFirstTickThenReady(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseReadingFile)},
		{run: runWithStatus(runID, importrun.StatusReviewReady)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	// The first poll fires without delay.
	sched.Advance(0)
	require.Equal(t, 1, repo.callCount())
	require.Equal(t, []int{20}, rec.progress)

	sched.Advance(2 * time.Second)
	require.Equal(t, 2, repo.callCount())
	require.Equal(t, 1, rec.ready)
	require.Equal(t, 1, rec.terminal())

	// Settled: no further polls, no further callbacks.
	sched.Advance(time.Minute)
	require.Equal(t, 2, repo.callCount())
	require.Equal(t, 1, rec.terminal())
}

func TestPoll_DoneReportsReady(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: runWithStatus(runID, importrun.StatusDone)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	sched.Advance(0)
	require.Equal(t, 1, rec.ready)
	require.Zero(t, rec.noData)
	require.Zero(t, rec.failed)
}

func TestPoll_TerminalStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status importrun.Status
		check  func(t *testing.T, rec *pollRecorder)
	}{
		{importrun.StatusNoData, func(t *testing.T, rec *pollRecorder) { require.Equal(t, 1, rec.noData) }},
		{importrun.StatusFailed, func(t *testing.T, rec *pollRecorder) { require.Equal(t, 1, rec.failed) }},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			t.Parallel()

			runID := uuid.New()
			repo := &stubRunRepository{responses: []runResponse{
				{run: runWithStatus(runID, tc.status)},
			}}
			sched := scheduler.NewManual()
			rec := &pollRecorder{}

			p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
			defer p.Stop()

			sched.Advance(0)
			sched.Advance(time.Minute)
			tc.check(t, rec)
			require.Equal(t, 1, rec.terminal())
			require.Equal(t, 1, repo.callCount())
		})
	}
}

func TestPoll_FetchErrorRetriesAtSlowInterval(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{err: fmt.Errorf("connection refused")},
		{run: runWithStatus(runID, importrun.StatusReviewReady)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	sched.Advance(0)
	require.Equal(t, 1, repo.callCount())
	require.Zero(t, rec.terminal())

	// Errors back off to the slow interval immediately.
	sched.Advance(2 * time.Second)
	require.Equal(t, 1, repo.callCount())
	sched.Advance(3 * time.Second)
	require.Equal(t, 2, repo.callCount())
	require.Equal(t, 1, rec.ready)
}

func TestPoll_FastThenSlowCadence(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseExtractingStreams)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	// Immediate poll plus five at the fast 2s cadence.
	sched.Advance(10 * time.Second)
	require.Equal(t, 6, repo.callCount())

	// After the fast attempts the cadence drops to 5s.
	sched.Advance(4 * time.Second)
	require.Equal(t, 6, repo.callCount())
	sched.Advance(1 * time.Second)
	require.Equal(t, 7, repo.callCount())
}

func TestPoll_StopPreventsFurtherPolls(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseCategorizing)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())

	sched.Advance(0)
	require.Equal(t, 1, repo.callCount())

	p.Stop()
	sched.Advance(time.Minute)
	require.Equal(t, 1, repo.callCount())
	require.Zero(t, rec.terminal())
}

func TestPoll_StopBeforeFirstTick(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: runWithStatus(runID, importrun.StatusReviewReady)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	p.Stop()

	sched.Advance(time.Minute)
	require.Zero(t, repo.callCount())
	require.Zero(t, rec.terminal())
}

func TestPoll_ContextCancellationStopsLoop(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseReadingFile)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewRunPollService(repo, sched, testLogger()).Start(ctx, runID, rec.callbacks())
	defer p.Stop()

	sched.Advance(0)
	require.Equal(t, 1, repo.callCount())

	cancel()
	sched.Advance(time.Minute)
	require.Equal(t, 1, repo.callCount())
}

func TestPoll_MissingPhaseHintFiresOnce(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, "")},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	sched.Advance(14 * time.Second)
	require.Zero(t, rec.hints)

	sched.Advance(time.Minute)
	require.Equal(t, 1, rec.hints)
}

func TestPoll_PhasePresentSuppressesHint(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseIdentifyingLocations)},
	}}
	sched := scheduler.NewManual()
	rec := &pollRecorder{}

	p := NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, rec.callbacks())
	defer p.Stop()

	sched.Advance(time.Minute)
	require.Zero(t, rec.hints)
}

func TestPoll_CallbackMayStopWithoutDeadlock(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	repo := &stubRunRepository{responses: []runResponse{
		{run: processingRun(runID, importrun.PhaseReadingFile)},
	}}
	sched := scheduler.NewManual()

	var p *Poll
	p = NewRunPollService(repo, sched, testLogger()).Start(context.Background(), runID, PollCallbacks{
		OnProgress: func(importrun.ImportRun, int) { p.Stop() },
	})

	sched.Advance(0)
	sched.Advance(time.Minute)
	require.Equal(t, 1, repo.callCount())
}
