package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/pkg/scheduler"
)

const (
	fastPollInterval = 2 * time.Second
	slowPollInterval = 5 * time.Second
	// fastPollAttempts is how many polls after the immediate one run at the
	// fast interval before backing off.
	fastPollAttempts      = 5
	missingPhaseHintAfter = 15 * time.Second
)

// PollCallbacks receive poll outcomes. Exactly one terminal callback fires per
// poll; no callback fires after Stop.
type PollCallbacks struct {
	OnReady    func(run importrun.ImportRun)
	OnNoData   func(run importrun.ImportRun)
	OnFailed   func(run importrun.ImportRun)
	OnProgress func(run importrun.ImportRun, progress int)
	// OnSlowProgress fires once when the run reports processing without a
	// phase key for longer than missingPhaseHintAfter.
	OnSlowProgress func()
}

// RunPollService polls run status until extraction settles. Polls are
// strictly sequential: the next poll is scheduled only after the previous one
// settled, success or error.
type RunPollService struct {
	runs  importrun.Repository
	sched scheduler.Scheduler
	log   *logrus.Logger
}

func NewRunPollService(runs importrun.Repository, sched scheduler.Scheduler, log *logrus.Logger) *RunPollService {
	return &RunPollService{runs: runs, sched: sched, log: log}
}

// Poll is one polling loop. Stop cancels it; results of in-flight fetches are
// discarded after cancellation.
type Poll struct {
	svc   *RunPollService
	ctx   context.Context
	runID uuid.UUID
	cb    PollCallbacks

	mu             sync.Mutex
	cancelTimer    scheduler.CancelFunc
	attempts       int
	phaselessSince *time.Time
	hintFired      bool
	stopped        bool
	settled        bool
}

// Start begins polling immediately.
func (s *RunPollService) Start(ctx context.Context, runID uuid.UUID, cb PollCallbacks) *Poll {
	p := &Poll{svc: s, ctx: ctx, runID: runID, cb: cb}
	p.mu.Lock()
	p.cancelTimer = s.sched.Schedule(0, p.tick)
	p.mu.Unlock()
	return p
}

// Stop cancels the loop. Safe to call more than once.
func (p *Poll) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancelTimer != nil {
		p.cancelTimer()
		p.cancelTimer = nil
	}
}

func (p *Poll) tick() {
	p.mu.Lock()
	if p.done() {
		p.mu.Unlock()
		return
	}
	p.attempts++
	p.mu.Unlock()

	run, err := p.svc.runs.GetByID(p.ctx, p.runID)

	// Decide under the lock, fire callbacks outside it so a callback may call
	// Stop without deadlocking.
	var fire []func()

	p.mu.Lock()
	if p.done() {
		// Stopped while the fetch was in flight; discard the result.
		p.mu.Unlock()
		return
	}

	switch {
	case err != nil:
		// Transient failure: never terminal, retry at the slow interval.
		p.svc.log.WithError(err).WithField("run_id", p.runID).Warn("run status poll failed")
		p.scheduleNextLocked(slowPollInterval)
	case run.Status() == importrun.StatusReviewReady || run.Status() == importrun.StatusDone:
		p.settled = true
		if p.cb.OnReady != nil {
			fire = append(fire, func() { p.cb.OnReady(run) })
		}
	case run.Status() == importrun.StatusNoData:
		p.settled = true
		if p.cb.OnNoData != nil {
			fire = append(fire, func() { p.cb.OnNoData(run) })
		}
	case run.Status() == importrun.StatusFailed:
		p.settled = true
		if p.cb.OnFailed != nil {
			fire = append(fire, func() { p.cb.OnFailed(run) })
		}
	default:
		if p.cb.OnProgress != nil {
			fire = append(fire, func() { p.cb.OnProgress(run, importrun.ProgressFor(run)) })
		}
		if hint := p.trackMissingPhaseLocked(run); hint {
			fire = append(fire, p.cb.OnSlowProgress)
		}
		p.scheduleNextLocked(p.nextDelayLocked())
	}
	p.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

func (p *Poll) done() bool {
	return p.stopped || p.settled || p.ctx.Err() != nil
}

func (p *Poll) nextDelayLocked() time.Duration {
	if p.attempts <= fastPollAttempts {
		return fastPollInterval
	}
	return slowPollInterval
}

func (p *Poll) scheduleNextLocked(d time.Duration) {
	p.cancelTimer = p.svc.sched.Schedule(d, p.tick)
}

// trackMissingPhaseLocked reports whether the "taking longer than expected"
// hint should fire: a processing run with no phase key for a while. Scheduling
// is not affected.
func (p *Poll) trackMissingPhaseLocked(run importrun.ImportRun) bool {
	if run.Status() != importrun.StatusProcessing || run.Phase() != "" {
		p.phaselessSince = nil
		return false
	}
	now := p.svc.sched.Now()
	if p.phaselessSince == nil {
		p.phaselessSince = &now
		return false
	}
	if !p.hintFired && now.Sub(*p.phaselessSince) >= missingPhaseHintAfter {
		p.hintFired = true
		return p.cb.OnSlowProgress != nil
	}
	return false
}
