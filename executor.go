package pairtopology

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrProcedureVetoed is returned by a Procedure when another subsystem
	// refused the action at this instant. It is reported as ResultTimeout.
	ErrProcedureVetoed = errors.New("procedure vetoed")
	ErrExecutorClosed  = errors.New("executor closed")
)

// Procedure is one atomic step of a goal script.
type Procedure func(ctx context.Context, goal Goal) error

type Scripts map[GoalKind][]Procedure

type ProcedureExecutor struct {
	mu      *sync.Mutex
	ctx     context.Context
	eg      *errgroup.Group
	scripts Scripts
	cancels map[GoalID]context.CancelFunc
	running *atomic.Int32
	closed  *atomic.Bool
	logger  *log.Logger
}

// Execute starts the script of goal.Kind in its own goroutine. A kind with no
// script completes successfully.
func (e *ProcedureExecutor) Execute(goal Goal, report ReportFunc) {
	if e.closed.Load() {
		e.logger.Printf("warn: %s: %+v", goal, ErrExecutorClosed)
		report(goal.ID, ResultFailure)
		return
	}

	ctx, cancel := e.goalContext(goal)
	e.mu.Lock()
	e.cancels[goal.ID] = cancel
	e.mu.Unlock()

	e.running.Inc()
	e.eg.Go(func() error {
		defer e.running.Dec()
		defer e.forget(goal.ID)

		result := e.run(ctx, goal)
		e.logger.Printf("debug: %s result=%s", goal, result)
		report(goal.ID, result)
		return nil
	})
}

// Cancel interrupts the running script of goal. The goal still reports.
func (e *ProcedureExecutor) Cancel(goal Goal) {
	e.mu.Lock()
	cancel, ok := e.cancels[goal.ID]
	e.mu.Unlock()

	if ok {
		e.logger.Printf("info: cancel %s", goal)
		cancel()
	}
}

func (e *ProcedureExecutor) Running() int {
	return int(e.running.Load())
}

// Close cancels every running script and waits for them to report.
func (e *ProcedureExecutor) Close() error {
	if e.closed.CompareAndSwap(false, true) != true {
		return nil
	}

	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	if err := e.eg.Wait(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (e *ProcedureExecutor) goalContext(goal Goal) (context.Context, context.CancelFunc) {
	if 0 < goal.Timeout {
		return context.WithTimeout(e.ctx, goal.Timeout)
	}
	return context.WithCancel(e.ctx)
}

func (e *ProcedureExecutor) forget(id GoalID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
}

func (e *ProcedureExecutor) run(ctx context.Context, goal Goal) Result {
	for i, proc := range e.scripts[goal.Kind] {
		if err := ctx.Err(); err != nil {
			return resultFromError(err)
		}
		if err := proc(ctx, goal); err != nil {
			e.logger.Printf("warn: %s step=%d: %+v", goal, i, err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return resultFromError(ctxErr)
			}
			return resultFromError(err)
		}
	}
	return ResultSuccess
}

func resultFromError(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrProcedureVetoed) {
		return ResultTimeout
	}
	return ResultFailure
}

func NewProcedureExecutor(parent context.Context, scripts Scripts, logger *log.Logger) *ProcedureExecutor {
	if logger == nil {
		logger = log.New(os.Stderr, "executor ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	eg, ctx := errgroup.WithContext(parent)
	return &ProcedureExecutor{
		mu:      new(sync.Mutex),
		ctx:     ctx,
		eg:      eg,
		scripts: scripts,
		cancels: make(map[GoalID]context.CancelFunc),
		running: atomic.NewInt32(0),
		closed:  atomic.NewBool(false),
		logger:  logger,
	}
}
