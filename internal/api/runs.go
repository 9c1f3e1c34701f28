package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/latticelab/pyramid-engine/internal/db"
	"github.com/latticelab/pyramid-engine/internal/solver"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// ErrRunInProgress rejects a new solve while an earlier one is still live.
var ErrRunInProgress = errors.New("a solve run is already in progress")

// ErrNoRun is returned by control endpoints when no run exists.
var ErrNoRun = errors.New("no solve run exists")

// RunManager owns at most one live solve run: it starts the runner, pumps its
// event stream to the websocket hub, and persists solutions and snapshots when
// a database is configured.
type RunManager struct {
	facade *solver.Facade
	hub    *Hub
	store  *db.Store // nil when persistence is disabled

	mu     sync.Mutex
	runID  string
	runner *solver.Runner
}

func NewRunManager(facade *solver.Facade, hub *Hub, store *db.Store) *RunManager {
	return &RunManager{facade: facade, hub: hub, store: store}
}

// Start launches a new background solve and begins running immediately.
// A finished previous run is replaced; a live one is rejected.
func (m *RunManager) Start(input models.SearchInput, set models.SearchSettings) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner != nil && m.runner.State() != solver.StateDone {
		return "", ErrRunInProgress
	}

	eng := m.facade.BuildEngine(input, set)
	runID := uuid.NewString()
	runner := solver.NewRunner(eng)
	m.runID = runID
	m.runner = runner

	go m.pump(runID, runner)
	runner.Resume()
	log.Printf("[Runs] Started solve run %s (container %q)", runID, input.ContainerID)
	return runID, nil
}

// Restore installs a run rebuilt from a snapshot. The run comes up idle;
// the caller resumes it explicitly.
func (m *RunManager) Restore(snap models.Snapshot) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner != nil && m.runner.State() != solver.StateDone {
		return "", ErrRunInProgress
	}

	eng, err := solver.Restore(m.facade.Table(), snap)
	if err != nil {
		return "", err
	}
	runID := uuid.NewString()
	runner := solver.NewRunner(eng)
	m.runID = runID
	m.runner = runner

	go m.pump(runID, runner)
	log.Printf("[Runs] Restored solve run %s from snapshot (container %q)", runID, snap.ContainerID)
	return runID, nil
}

// pump forwards run events to the hub and the store until the stream closes.
func (m *RunManager) pump(runID string, runner *solver.Runner) {
	for ev := range runner.Events() {
		m.hub.BroadcastRunEvent(runID, ev)

		if m.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch ev.Type {
		case models.EventSolution:
			if err := m.store.SaveSolution(ctx, runID, *ev.Solution); err != nil {
				log.Printf("[Runs] Failed to persist solution for run %s: %v", runID, err)
			}
		case models.EventDone:
			snap := runner.Snapshot()
			if err := m.store.SaveRun(ctx, runID, solver.StateDone, ev.Done.Reason, snap); err != nil {
				log.Printf("[Runs] Failed to persist final state for run %s: %v", runID, err)
			}
		}
		cancel()
	}
}

func (m *RunManager) current() (string, *solver.Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runner == nil {
		return "", nil, ErrNoRun
	}
	return m.runID, m.runner, nil
}

// Progress reports the live run's state and counters.
func (m *RunManager) Progress() (gin.H, error) {
	runID, runner, err := m.current()
	if err != nil {
		return nil, err
	}
	status := runner.Status()
	out := gin.H{
		"runId":  runID,
		"state":  runner.State(),
		"status": status,
	}
	if runner.State() == solver.StateDone {
		out["reason"] = runner.DoneReason()
	}
	return out, nil
}

func (m *RunManager) Pause() error {
	_, runner, err := m.current()
	if err != nil {
		return err
	}
	runner.Pause()
	return nil
}

func (m *RunManager) Resume() error {
	_, runner, err := m.current()
	if err != nil {
		return err
	}
	runner.Resume()
	return nil
}

func (m *RunManager) Cancel() error {
	_, runner, err := m.current()
	if err != nil {
		return err
	}
	runner.Cancel()
	return nil
}

// Snapshot captures the live run, persisting it when a store is configured.
func (m *RunManager) Snapshot() (string, models.Snapshot, error) {
	runID, runner, err := m.current()
	if err != nil {
		return "", models.Snapshot{}, err
	}
	snap := runner.Snapshot()
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.SaveRun(ctx, runID, runner.State(), runner.DoneReason(), snap); err != nil {
			log.Printf("[Runs] Failed to persist snapshot for run %s: %v", runID, err)
		}
	}
	return runID, snap, nil
}
