// Package hooks runs registered lifecycle hooks per phase with ordering and
// timeout guarantees. Timeouts are advisory: a hook exceeding its budget is
// reported as timed out, but the underlying goroutine is not preempted and
// keeps running to completion in the background.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Phase identifies one of the six lifecycle hook phases.
type Phase string

const (
	PhaseBeforeAll  Phase = "BeforeAll"
	PhaseBefore     Phase = "Before"
	PhaseBeforeStep Phase = "BeforeStep"
	PhaseAfterStep  Phase = "AfterStep"
	PhaseAfter      Phase = "After"
	PhaseAfterAll   Phase = "AfterAll"
)

// ErrLocked is returned by Register once the orchestrator has been locked.
var ErrLocked = errors.New("hook orchestrator is locked, registration is not permitted during execution")

// HookFunc is the body of one hook.
type HookFunc func(ctx context.Context) error

// Hook is a named hook registered against one phase. Lower Order runs
// earlier. A zero Timeout means no deadline.
type Hook struct {
	Name    string
	Order   int
	Timeout time.Duration
	Fn      HookFunc
}

// Result records the outcome of one hook execution.
type Result struct {
	Name     string
	Phase    Phase
	Err      error
	TimedOut bool
	Duration time.Duration
}

// TimeoutError reports a hook exceeding its timeout budget.
type TimeoutError struct {
	Hook    string
	Phase   Phase
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hook %q in phase %s timed out after %s", e.Hook, e.Phase, e.Timeout)
}

// IsTimeoutError checks if the error is or wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return err != nil && errors.As(err, &target)
}

// Orchestrator stores ordered hooks per phase and runs them sequentially.
// Like the step registry it is locked before the first scenario runs and is
// read-only afterwards, so it is safely shared by reference across workers.
type Orchestrator struct {
	mu     sync.RWMutex
	hooks  map[Phase][]Hook
	locked bool
	log    log.Logger
}

// New creates an empty hook orchestrator.
func New(logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New()
	}
	return &Orchestrator{
		hooks: make(map[Phase][]Hook),
		log:   logger.New("component", "hooks"),
	}
}

// Register adds a hook to a phase. Fails once the orchestrator is locked.
func (o *Orchestrator) Register(phase Phase, h Hook) error {
	if h.Fn == nil {
		return fmt.Errorf("hook %q in phase %s has no function", h.Name, phase)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locked {
		return ErrLocked
	}
	o.hooks[phase] = append(o.hooks[phase], h)
	o.log.Debug("Registered hook", "phase", phase, "name", h.Name, "order", h.Order)
	return nil
}

// Lock freezes registration and sorts each phase by ascending order.
func (o *Orchestrator) Lock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locked {
		return
	}
	for phase := range o.hooks {
		hs := o.hooks[phase]
		sort.SliceStable(hs, func(i, j int) bool { return hs[i].Order < hs[j].Order })
	}
	o.locked = true
}

// Unlock re-opens registration. Intended for test setups.
func (o *Orchestrator) Unlock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = false
}

// RunPhase executes a phase's hooks strictly in ascending order, never
// concurrently. For Before-type phases the first failure aborts the
// remaining hooks of the phase and is returned. For After-type phases every
// hook is attempted regardless of failures, to guarantee resource cleanup,
// and the failures are joined into the returned error.
func (o *Orchestrator) RunPhase(ctx context.Context, phase Phase) ([]Result, error) {
	o.mu.RLock()
	hs := make([]Hook, len(o.hooks[phase]))
	copy(hs, o.hooks[phase])
	locked := o.locked
	o.mu.RUnlock()

	if !locked {
		// Registration order is only guaranteed sorted after Lock.
		sort.SliceStable(hs, func(i, j int) bool { return hs[i].Order < hs[j].Order })
	}

	abortOnFailure := isBeforePhase(phase)
	var results []Result
	var errs []error
	for _, h := range hs {
		res := o.runHook(ctx, phase, h)
		results = append(results, res)
		if res.Err == nil {
			continue
		}
		o.log.Error("Hook failed", "phase", phase, "name", h.Name, "timedOut", res.TimedOut, "error", res.Err)
		errs = append(errs, res.Err)
		if abortOnFailure {
			break
		}
	}
	return results, errors.Join(errs...)
}

// runHook runs one hook, enforcing its advisory timeout. On timeout the
// hook goroutine is left running; only its outcome is marked failed.
func (o *Orchestrator) runHook(ctx context.Context, phase Phase, h Hook) Result {
	start := time.Now()
	res := Result{Name: h.Name, Phase: phase}

	if h.Timeout <= 0 {
		res.Err = o.safeCall(ctx, h)
		res.Duration = time.Since(start)
		return res
	}

	done := make(chan error, 1)
	go func() {
		done <- o.safeCall(ctx, h)
	}()

	select {
	case err := <-done:
		res.Err = err
	case <-time.After(h.Timeout):
		res.TimedOut = true
		res.Err = &TimeoutError{Hook: h.Name, Phase: phase, Timeout: h.Timeout}
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	res.Duration = time.Since(start)
	return res
}

// safeCall converts a panicking hook into an error.
func (o *Orchestrator) safeCall(ctx context.Context, h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %q panicked: %v", h.Name, r)
		}
	}()
	return h.Fn(ctx)
}

// isBeforePhase reports whether a phase aborts its siblings on failure.
func isBeforePhase(p Phase) bool {
	switch p {
	case PhaseBeforeAll, PhaseBefore, PhaseBeforeStep:
		return true
	default:
		return false
	}
}
