package orchestrator

import (
	"errors"
	"fmt"

	"github.com/stepflow-dev/stepflow/types"
)

// Message is the closed set of worker-to-coordinator messages. The receiving
// side switches exhaustively on the concrete variants; there is no untyped
// payload.
type Message interface {
	isMessage()
}

// ReadyMsg signals a worker is idle and can accept work.
type ReadyMsg struct {
	WorkerID int
}

// ProgressMsg reports in-flight progress on a work item.
type ProgressMsg struct {
	WorkerID  int
	ItemID    string
	Scenario  string
	Completed int
	Total     int
}

// ResultMsg returns ownership of the produced results to the coordinator.
type ResultMsg struct {
	WorkerID int
	Item     *types.WorkItem
	Results  []*types.ScenarioResult
}

// ErrorMsg reports a worker fault. Fatal faults terminate the worker; the
// coordinator requeues its in-flight item and spawns a replacement.
type ErrorMsg struct {
	WorkerID int
	Item     *types.WorkItem
	Err      error
	Fatal    bool
}

// LogMsg carries a worker-side log line to the coordinator.
type LogMsg struct {
	WorkerID int
	Text     string
}

func (ReadyMsg) isMessage()    {}
func (ProgressMsg) isMessage() {}
func (ResultMsg) isMessage()   {}
func (ErrorMsg) isMessage()    {}
func (LogMsg) isMessage()      {}

// TransportError wraps a worker-level fault. It is recovered transparently
// (requeue + respawn) and never surfaced to the scenario author.
type TransportError struct {
	WorkerID int
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("worker %d transport error: %v", e.WorkerID, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// IsTransportError checks if the error is or wraps a TransportError.
func IsTransportError(err error) bool {
	var target *TransportError
	return err != nil && errors.As(err, &target)
}
