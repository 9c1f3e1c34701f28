// Package worker runs the solver in an isolated execution context reachable
// only via message passing. The caller talks to it through a Client that
// enforces the latest-wins single-flight policy and a redundant timeout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/internal/solver"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// ErrWorkerClosed is returned for requests against a disposed or crashed
// worker context. All pending requests are rejected uniformly with it.
var ErrWorkerClosed = errors.New("worker context closed")

type checkMsg struct {
	req   models.CheckRequest
	reply chan models.CheckResponse
}

// Context is an explicitly constructed, explicitly owned worker handle. One
// goroutine serves its message loop; checks compute on a per-request
// goroutine so cancel messages are always serviced promptly.
type Context struct {
	facade  *solver.Facade
	checks  chan checkMsg
	cancels chan string
	quit    chan struct{}
	once    sync.Once

	mu            sync.Mutex
	currentID     string
	currentCancel context.CancelFunc
}

// NewContext starts a worker over the given orientation table. The caller
// owns the handle and must Close it.
func NewContext(table *pieces.Table) *Context {
	c := &Context{
		facade:  solver.NewFacade(table),
		checks:  make(chan checkMsg),
		cancels: make(chan string, 16),
		quit:    make(chan struct{}),
	}
	go c.serve()
	return c
}

// Close disposes the worker. In-flight work is canceled and later requests
// are rejected with ErrWorkerClosed.
func (c *Context) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.cancelCurrent("")
	})
}

// Closed signals transport disposal or failure.
func (c *Context) Closed() <-chan struct{} {
	return c.quit
}

func (c *Context) serve() {
	defer func() {
		// A fault in the message loop itself kills the context; pending
		// callers are bulk-rejected via the closed quit channel.
		if r := recover(); r != nil {
			log.Printf("[Worker] Message loop fault: %v", r)
			c.Close()
		}
	}()
	for {
		select {
		case <-c.quit:
			c.cancelCurrent("")
			return
		case id := <-c.cancels:
			c.cancelCurrent(id)
		case msg := <-c.checks:
			// Latest wins: a new check supersedes whatever is computing.
			c.cancelCurrent("")
			ctx, cancel := context.WithCancel(context.Background())
			c.mu.Lock()
			c.currentID, c.currentCancel = msg.req.RequestID, cancel
			c.mu.Unlock()
			go c.run(ctx, cancel, msg)
		}
	}
}

// cancelCurrent cancels the running check. With a non-empty id it only
// cancels a matching request, so stale cancels cannot kill a newer check.
func (c *Context) cancelCurrent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentCancel == nil {
		return
	}
	if id != "" && id != c.currentID {
		return
	}
	c.currentCancel()
}

func (c *Context) run(ctx context.Context, cancel context.CancelFunc, msg checkMsg) {
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Check %s fault: %v", msg.req.RequestID, r)
			msg.reply <- models.CheckResponse{
				RequestID: msg.req.RequestID,
				Error:     fmt.Sprintf("worker fault: %v", r),
			}
		}
		c.mu.Lock()
		if c.currentID == msg.req.RequestID {
			c.currentID, c.currentCancel = "", nil
		}
		c.mu.Unlock()
	}()

	result, err := c.facade.Check(ctx, msg.req)
	if err != nil {
		msg.reply <- models.CheckResponse{RequestID: msg.req.RequestID, Error: "canceled"}
		return
	}
	msg.reply <- models.CheckResponse{RequestID: msg.req.RequestID, Result: &result}
}

// submit hands a check to the message loop, failing fast once disposed.
func (c *Context) submit(req models.CheckRequest, reply chan models.CheckResponse) error {
	select {
	case c.checks <- checkMsg{req: req, reply: reply}:
		return nil
	case <-c.quit:
		return ErrWorkerClosed
	}
}

// requestCancel enqueues a cancel message; it never blocks the caller.
func (c *Context) requestCancel(id string) {
	select {
	case c.cancels <- id:
	default:
	}
}

// Facade exposes the worker's facade for in-process callers (hints).
func (c *Context) Facade() *solver.Facade {
	return c.facade
}
