package worker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/latticelab/pyramid-engine/internal/solver"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// ErrSuperseded rejects a check that was displaced by a newer one under the
// latest-wins single-flight policy.
var ErrSuperseded = errors.New("request superseded by a newer check")

// timeoutGrace is added on top of the engine's own timeout for the caller's
// redundant wall-clock enforcement: a compute-heavy batch inside the worker
// could otherwise delay the internal check slightly past the budget.
const timeoutGrace = 250 * time.Millisecond

type pendingCall struct {
	id         string
	superseded chan struct{}
}

// Client is the caller side of the worker boundary. At most one check is
// logically in flight: issuing a new one implicitly cancels and rejects any
// still-pending previous request. Every issued request eventually resolves:
// by its response, by supersession, by the redundant timeout, or by bulk
// rejection when the worker is disposed.
type Client struct {
	wctx    *Context
	mu      sync.Mutex
	pending *pendingCall
}

func NewClient(wctx *Context) *Client {
	return &Client{wctx: wctx}
}

// Check evaluates one position on the worker and blocks until resolution.
// A timeout resolves with a distinguished unknown/timed-out result and nil
// error; supersession and transport faults resolve with an error.
func (cl *Client) Check(input models.SearchInput, timeoutMs int64, emptyThreshold int) (models.CheckResult, error) {
	if timeoutMs <= 0 {
		timeoutMs = solver.DefaultCheckTimeoutMs
	}
	req := models.CheckRequest{
		RequestID:      uuid.NewString(),
		Input:          input,
		TimeoutMs:      timeoutMs,
		EmptyThreshold: emptyThreshold,
	}
	reply := make(chan models.CheckResponse, 1)
	call := &pendingCall{id: req.RequestID, superseded: make(chan struct{})}

	cl.mu.Lock()
	if cl.pending != nil {
		close(cl.pending.superseded)
		cl.wctx.requestCancel(cl.pending.id)
	}
	cl.pending = call
	cl.mu.Unlock()

	if err := cl.wctx.submit(req, reply); err != nil {
		cl.clearPending(call)
		return models.CheckResult{}, err
	}

	timer := time.NewTimer(time.Duration(timeoutMs)*time.Millisecond + timeoutGrace)
	defer timer.Stop()

	select {
	case resp := <-reply:
		cl.clearPending(call)
		if resp.Error != "" {
			return models.CheckResult{}, errors.New(resp.Error)
		}
		return *resp.Result, nil
	case <-call.superseded:
		return models.CheckResult{}, ErrSuperseded
	case <-timer.C:
		// Redundant caller-side timeout: cancel downstream, resolve unknown.
		cl.wctx.requestCancel(call.id)
		cl.clearPending(call)
		return models.CheckResult{
			Verdict: models.VerdictUnknown,
			Reason:  "timed out waiting for worker",
			Mode:    models.CheckModeFull,
		}, nil
	case <-cl.wctx.Closed():
		cl.clearPending(call)
		return models.CheckResult{}, ErrWorkerClosed
	}
}

func (cl *Client) clearPending(call *pendingCall) {
	cl.mu.Lock()
	if cl.pending == call {
		cl.pending = nil
	}
	cl.mu.Unlock()
}
