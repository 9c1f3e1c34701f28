package solver

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latticelab/pyramid-engine/pkg/models"
)

// Runner states.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StatePaused  = "paused"
	StateDone    = "done"
)

// Runner drives an Engine in bounded batches on a background goroutine,
// yielding between batches so the search never monopolizes a thread. It
// exposes the cooperative control surface: pause, resume, cancel, snapshot.
//
// Events (status, solution, done) are delivered in production order on one
// channel. Status heartbeats are dropped if the consumer lags; solution and
// done events are never dropped.
type Runner struct {
	mu  sync.Mutex
	eng *Engine

	batchSize      int
	statusInterval time.Duration
	timeout        time.Duration

	events chan models.Event
	wake   chan struct{}

	state       atomic.Value // string
	pauseReq    atomic.Bool
	cancelReq   atomic.Bool
	loopStarted bool

	started     time.Time     // start of the current running stretch
	accumulated time.Duration // run time from previous stretches
	lastStatus  time.Time
	doneReason  string
}

// NewRunner wraps an engine. Batch size, heartbeat interval, and timeout come
// from the engine's normalized settings.
func NewRunner(eng *Engine) *Runner {
	set := eng.Settings()
	r := &Runner{
		eng:            eng,
		batchSize:      DefaultBatchSize,
		statusInterval: time.Duration(set.StatusIntervalMs) * time.Millisecond,
		timeout:        time.Duration(set.TimeoutMs) * time.Millisecond,
		events:         make(chan models.Event, 256),
		wake:           make(chan struct{}, 1),
	}
	r.state.Store(StateIdle)
	return r
}

// Events is the ordered stream of status/solution/done events for this run.
// The channel is closed after the done event.
func (r *Runner) Events() <-chan models.Event {
	return r.events
}

// State returns the current scheduler state.
func (r *Runner) State() string {
	return r.state.Load().(string)
}

// DoneReason returns the terminal reason once the state is done.
func (r *Runner) DoneReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneReason
}

// Resume transitions to running from idle or paused. The first call starts
// the batch loop; later calls wake a paused loop.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.State() {
	case StateDone, StateRunning:
		return
	}
	r.pauseReq.Store(false)
	if !r.loopStarted {
		r.loopStarted = true
		r.started = time.Now()
		r.state.Store(StateRunning)
		go r.loop()
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pause requests a pause. It is honored at the next batch boundary; the
// in-flight batch finishes its current step first.
func (r *Runner) Pause() {
	if r.State() != StateRunning {
		return
	}
	r.pauseReq.Store(true)
}

// Cancel terminates the run. Exactly one terminal "canceled" event is
// emitted; no further status or solution events follow it.
func (r *Runner) Cancel() {
	r.mu.Lock()
	if r.State() == StateDone {
		r.mu.Unlock()
		return
	}
	r.cancelReq.Store(true)
	if !r.loopStarted {
		// Never started: finish synchronously.
		r.finishLocked(models.DoneCanceled)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Status reports the current counters and stack without emitting an event.
// Like Snapshot it waits for the in-flight batch to reach its boundary.
func (r *Runner) Status() models.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes, pruned, solutions := r.eng.Counters()
	return models.StatusEvent{
		Nodes:     nodes,
		Pruned:    pruned,
		Solutions: solutions,
		Depth:     r.eng.Depth(),
		ElapsedMs: r.eng.baseElapsedMs + r.elapsedLocked().Milliseconds(),
		Stack:     r.eng.StackPlacements(),
	}
}

// Snapshot captures a deep, restartable copy of the current search state.
// It waits for any in-flight batch to reach its boundary, so the copy is
// point-in-time consistent.
func (r *Runner) Snapshot() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eng.Snapshot(r.elapsedLocked().Milliseconds())
}

func (r *Runner) elapsedLocked() time.Duration {
	if r.State() == StateRunning {
		return r.accumulated + time.Since(r.started)
	}
	return r.accumulated
}

func (r *Runner) loop() {
	r.emitStatus()
	for {
		if r.cancelReq.Load() {
			r.finish(models.DoneCanceled)
			return
		}
		if r.pauseReq.Load() {
			if !r.parkUntilResumed() {
				r.finish(models.DoneCanceled)
				return
			}
			continue
		}

		out := r.runBatch()
		if out.Done {
			r.finish(out.Reason)
			return
		}
		if r.timeout > 0 && r.elapsed() >= r.timeout {
			r.finish(models.DoneTimeout)
			return
		}
		if r.statusInterval > 0 && time.Since(r.lastStatus) >= r.statusInterval {
			r.emitStatus()
		}

		// Yield between batches.
		runtime.Gosched()
	}
}

// runBatch executes up to batchSize steps under the state lock. Solution
// events are collected and emitted after the lock is released so a slow
// consumer cannot stall a Snapshot call.
func (r *Runner) runBatch() StepResult {
	var solutions []*models.SolutionEvent
	var out StepResult

	r.mu.Lock()
	for i := 0; i < r.batchSize; i++ {
		out = r.eng.Step()
		if out.Solution != nil {
			solutions = append(solutions, out.Solution)
		}
		if out.Done {
			break
		}
		if out.PauseRequested {
			r.pauseReq.Store(true)
			break
		}
	}
	r.mu.Unlock()

	for _, sol := range solutions {
		r.events <- models.Event{Type: models.EventSolution, Solution: sol}
	}
	return out
}

// parkUntilResumed moves to paused and blocks until Resume or Cancel. It
// returns false when the park ended in cancellation.
func (r *Runner) parkUntilResumed() bool {
	r.mu.Lock()
	r.accumulated += time.Since(r.started)
	r.state.Store(StatePaused)
	r.mu.Unlock()
	r.emitStatus()

	for r.pauseReq.Load() && !r.cancelReq.Load() {
		<-r.wake
	}
	if r.cancelReq.Load() {
		return false
	}

	r.mu.Lock()
	r.started = time.Now()
	r.state.Store(StateRunning)
	r.mu.Unlock()
	r.emitStatus()
	return true
}

func (r *Runner) elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsedLocked()
}

func (r *Runner) finish(reason string) {
	r.mu.Lock()
	r.finishLocked(reason)
	r.mu.Unlock()
}

func (r *Runner) finishLocked(reason string) {
	if r.State() == StateDone {
		return
	}
	if r.State() == StateRunning {
		r.accumulated += time.Since(r.started)
	}
	r.eng.Finish(reason)
	r.doneReason = reason
	r.state.Store(StateDone)

	nodes, pruned, solutions := r.eng.Counters()
	log.Printf("[Runner] Search finished (%s): %d nodes, %d pruned, %d solutions, %v elapsed",
		reason, nodes, pruned, solutions, r.accumulated.Round(time.Millisecond))

	r.emitStatusLocked()
	r.events <- models.Event{Type: models.EventDone, Done: &models.DoneEvent{Reason: reason}}
	close(r.events)
}

func (r *Runner) emitStatus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() == StateDone {
		return
	}
	r.emitStatusLocked()
}

func (r *Runner) emitStatusLocked() {
	nodes, pruned, solutions := r.eng.Counters()
	ev := models.Event{Type: models.EventStatus, Status: &models.StatusEvent{
		Nodes:     nodes,
		Pruned:    pruned,
		Solutions: solutions,
		Depth:     r.eng.Depth(),
		ElapsedMs: r.eng.baseElapsedMs + r.elapsedLocked().Milliseconds(),
		Stack:     r.eng.StackPlacements(),
	}}
	r.lastStatus = time.Now()
	select {
	case r.events <- ev:
	default:
		// Consumer is lagging; heartbeats are safe to drop.
	}
}
