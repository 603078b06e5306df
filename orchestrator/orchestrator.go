// Package orchestrator owns the parallel worker pool: a priority work queue
// filled from the execution plan, worker goroutines that each run scenarios
// strictly one at a time, and the tagged message protocol through which
// results flow back to a single coordinator loop.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/stepflow-dev/stepflow/executor"
	"github.com/stepflow-dev/stepflow/metrics"
	"github.com/stepflow-dev/stepflow/types"
)

const (
	// DefaultSoftErrorLimit is how many soft errors a worker may accumulate
	// before it is proactively terminated and replaced.
	DefaultSoftErrorLimit = 3
	// DefaultRequeueLimit caps how often one work item is requeued after
	// worker faults before it is converted into a failed result. A negative
	// configured limit restores the unbounded behavior of the original
	// design, at the caller's risk.
	DefaultRequeueLimit = 3
	// DefaultPollInterval is the fixed interval at which the coordinator
	// polls completion progress.
	DefaultPollInterval = 100 * time.Millisecond
)

// RunItemFunc executes one work item and returns its scenario results.
type RunItemFunc func(ctx context.Context, item *types.WorkItem) ([]*types.ScenarioResult, error)

// Config holds orchestrator settings.
type Config struct {
	Workers        int // 0 selects DefaultWorkerCount()
	Executor       *executor.Executor
	RunItem        RunItemFunc // optional override of the executor-backed default
	Log            log.Logger
	RequeueLimit   int           // 0 selects DefaultRequeueLimit, negative is unbounded
	SoftErrorLimit int           // 0 selects DefaultSoftErrorLimit
	PollInterval   time.Duration // 0 selects DefaultPollInterval
}

// DefaultWorkerCount sizes the pool to max(1, cpuCount-1).
func DefaultWorkerCount() int {
	return max(1, runtime.NumCPU()-1)
}

type workerStatus int

const (
	workerIdle workerStatus = iota
	workerBusy
)

// workerHandle is the coordinator's view of one worker. It is only touched
// from the coordinator loop.
type workerHandle struct {
	id         int
	status     workerStatus
	current    *types.WorkItem
	assign     chan *types.WorkItem
	softErrors int
}

// Orchestrator dispatches work items to a pool of workers and funnels their
// results through one aggregation point.
type Orchestrator struct {
	cfg     Config
	log     log.Logger
	runItem RunItemFunc
	aborted atomic.Bool
	wg      sync.WaitGroup
}

// New creates a worker orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Executor == nil && cfg.RunItem == nil {
		return nil, fmt.Errorf("an executor or a run-item function is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkerCount()
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.SoftErrorLimit == 0 {
		cfg.SoftErrorLimit = DefaultSoftErrorLimit
	}
	if cfg.RequeueLimit == 0 {
		cfg.RequeueLimit = DefaultRequeueLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	o := &Orchestrator{
		cfg: cfg,
		log: cfg.Log.New("component", "orchestrator"),
	}
	o.runItem = cfg.RunItem
	if o.runItem == nil {
		o.runItem = func(ctx context.Context, item *types.WorkItem) ([]*types.ScenarioResult, error) {
			var results []*types.ScenarioResult
			for _, s := range item.Scenarios {
				results = append(results, cfg.Executor.ExecuteScenario(ctx, s)...)
			}
			return results, nil
		}
	}
	return o, nil
}

// Abort sets the cancellation flag. No new assignments occur after abort;
// already-dispatched work runs to completion and the workers are torn down
// during cleanup.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)
}

// Aborted reports whether the orchestrator has been aborted.
func (o *Orchestrator) Aborted() bool {
	return o.aborted.Load()
}

// Execute runs the plan's work items. Serial items run one at a time before
// the parallel race begins; parallel items are dispatched greedily to the
// pool. onResult is invoked from this goroutine only, so the caller's
// aggregation needs no locking.
func (o *Orchestrator) Execute(ctx context.Context, plan *types.ExecutionPlan, onResult func(*types.ScenarioResult)) error {
	var serial, parallel []*types.WorkItem
	for _, item := range plan.WorkItems {
		if item.Serial {
			serial = append(serial, item)
		} else {
			parallel = append(parallel, item)
		}
	}

	o.log.Info("Starting parallel execution",
		"serialItems", len(serial), "parallelItems", len(parallel), "workers", o.cfg.Workers)

	// The serial group is never parallelized: it runs to exhaustion on the
	// coordinator goroutine itself.
	for _, item := range serial {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}
		results, err := o.runItem(ctx, item)
		if err != nil {
			o.failItem(item, err, onResult)
			continue
		}
		for _, r := range results {
			onResult(r)
		}
	}

	if len(parallel) == 0 {
		return ctx.Err()
	}
	return o.runPool(ctx, parallel, onResult)
}

// runPool is the coordinator loop for the parallel items.
func (o *Orchestrator) runPool(ctx context.Context, items []*types.WorkItem, onResult func(*types.ScenarioResult)) error {
	queue := newWorkQueue(items)
	totalItems := len(items)
	completedItems := 0
	requeues := make(map[string]int)

	msgs := make(chan Message, o.cfg.Workers*2)
	workers := make(map[int]*workerHandle, o.cfg.Workers)
	nextID := 0
	spawn := func() *workerHandle {
		nextID++
		h := &workerHandle{id: nextID, assign: make(chan *types.WorkItem, 1)}
		workers[h.id] = h
		o.wg.Add(1)
		go o.runWorker(ctx, h.id, h.assign, msgs)
		return h
	}

	poolSize := min(o.cfg.Workers, totalItems)
	for i := 0; i < poolSize; i++ {
		spawn()
	}

	// requeueOrFail puts a faulted item back at the FRONT of the queue so
	// in-flight work is never lost, unless its requeue cap is exhausted, in
	// which case it is converted into failed results.
	requeueOrFail := func(item *types.WorkItem, cause error) {
		if item == nil {
			return
		}
		requeues[item.ID]++
		if o.cfg.RequeueLimit > 0 && requeues[item.ID] > o.cfg.RequeueLimit {
			o.log.Error("Work item exceeded requeue limit, failing it",
				"item", item.ID, "requeues", requeues[item.ID]-1, "error", cause)
			o.failItem(item, cause, onResult)
			completedItems++
			return
		}
		queue.PushFront(item)
	}

	// tryAssign greedily hands the next queued item to an idle worker. The
	// abort flag is checked before every new assignment.
	tryAssign := func(h *workerHandle) {
		if o.aborted.Load() || h.status != workerIdle {
			return
		}
		item, ok := queue.Pop()
		if !ok {
			return
		}
		h.status = workerBusy
		h.current = item
		h.assign <- item
	}

	replace := func(h *workerHandle, cause error) {
		o.log.Warn("Replacing worker", "worker", h.id, "softErrors", h.softErrors, "error", cause)
		metrics.RecordWorkerReplacement()
		close(h.assign)
		delete(workers, h.id)
		if !o.aborted.Load() {
			spawn()
		}
	}

	busy := func() int {
		n := 0
		for _, h := range workers {
			if h.status == workerBusy {
				n++
			}
		}
		return n
	}

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	// done is nilled after the first cancellation; a closed Done channel is
	// always ready and would otherwise spin this loop until the last busy
	// worker finishes.
	done := ctx.Done()

loop:
	for {
		select {
		case msg := <-msgs:
			switch m := msg.(type) {
			case ReadyMsg:
				if h, ok := workers[m.WorkerID]; ok {
					h.status = workerIdle
					tryAssign(h)
				}

			case ResultMsg:
				completedItems++
				for _, r := range m.Results {
					onResult(r)
				}
				if h, ok := workers[m.WorkerID]; ok {
					h.status = workerIdle
					h.current = nil
					tryAssign(h)
				}

			case ErrorMsg:
				h, known := workers[m.WorkerID]
				if m.Fatal {
					// Transport-level fault: the worker is gone. Requeue its
					// in-flight item and spawn a replacement.
					o.log.Error("Worker died", "worker", m.WorkerID, "error", m.Err)
					requeueOrFail(m.Item, m.Err)
					if known {
						replace(h, m.Err)
					} else if !o.aborted.Load() {
						spawn()
					}
					break
				}
				// Soft error: the worker stays alive unless it has
				// accumulated too many of them.
				o.log.Warn("Worker reported soft error", "worker", m.WorkerID, "item", itemID(m.Item), "error", m.Err)
				requeueOrFail(m.Item, m.Err)
				if !known {
					break
				}
				h.status = workerIdle
				h.current = nil
				h.softErrors++
				if h.softErrors > o.cfg.SoftErrorLimit {
					replace(h, m.Err)
				} else {
					tryAssign(h)
				}

			case ProgressMsg:
				o.log.Debug("Work item progress", "worker", m.WorkerID, "item", m.ItemID,
					"scenario", m.Scenario, "completed", m.Completed, "total", m.Total)

			case LogMsg:
				o.log.Debug("Worker log", "worker", m.WorkerID, "msg", m.Text)
			}

		case <-ticker.C:
			// Completion is polled, not event-driven: every completion path
			// increments completedItems synchronously before this check.
			if completedItems >= totalItems {
				break loop
			}
			if o.aborted.Load() && busy() == 0 {
				break loop
			}

		case <-done:
			o.aborted.Store(true)
			done = nil
			o.log.Warn("Context cancelled, waiting for in-flight work", "busy", busy())
		}
	}

	// Cleanup: no new assignments happen past this point; close the assign
	// channels so idle workers exit, then drain outstanding messages until
	// every worker goroutine is gone.
	for _, h := range workers {
		close(h.assign)
		delete(workers, h.id)
	}
	go func() {
		o.wg.Wait()
		close(msgs)
	}()
	for msg := range msgs {
		if m, ok := msg.(ResultMsg); ok && completedItems < totalItems {
			completedItems++
			for _, r := range m.Results {
				onResult(r)
			}
		}
	}

	o.log.Info("Parallel execution finished",
		"completed", completedItems, "total", totalItems, "aborted", o.aborted.Load())
	return ctx.Err()
}

// runWorker is the worker goroutine: it executes assigned items one at a
// time and reports through the message channel. A panic escaping item
// execution is a fatal fault that kills the worker.
func (o *Orchestrator) runWorker(ctx context.Context, id int, assign <-chan *types.WorkItem, msgs chan<- Message) {
	defer o.wg.Done()

	msgs <- ReadyMsg{WorkerID: id}
	for item := range assign {
		// Worker-side log lines travel through the message channel so they
		// serialize with the coordinator's own logging.
		msgs <- LogMsg{WorkerID: id, Text: fmt.Sprintf("running work item %s with %d scenarios", item.ID, len(item.Scenarios))}
		results, err, crash := o.processItem(ctx, id, item, msgs)
		switch {
		case crash != nil:
			msgs <- ErrorMsg{WorkerID: id, Item: item, Err: &TransportError{WorkerID: id, Cause: crash}, Fatal: true}
			return
		case err != nil:
			msgs <- ErrorMsg{WorkerID: id, Item: item, Err: err}
		default:
			msgs <- ResultMsg{WorkerID: id, Item: item, Results: results}
		}
	}
}

// processItem runs one work item, reporting per-scenario progress and
// converting panics into a crash outcome.
func (o *Orchestrator) processItem(ctx context.Context, id int, item *types.WorkItem, msgs chan<- Message) (results []*types.ScenarioResult, err error, crash error) {
	defer func() {
		if r := recover(); r != nil {
			crash = fmt.Errorf("panic: %v", r)
		}
	}()

	total := len(item.Scenarios)
	if total > 0 {
		msgs <- ProgressMsg{WorkerID: id, ItemID: item.ID, Scenario: item.Scenarios[0].Name, Completed: 0, Total: total}
	}
	results, err = o.runItem(ctx, item)
	return results, err, nil
}

// failItem converts a work item into failed results carrying the fault, so
// downstream reporting always has something to render.
func (o *Orchestrator) failItem(item *types.WorkItem, cause error, onResult func(*types.ScenarioResult)) {
	now := time.Now()
	for _, s := range item.Scenarios {
		onResult(&types.ScenarioResult{
			ScenarioID:  s.ID,
			Name:        s.Name,
			FeatureName: s.FeatureName,
			FeatureURI:  s.FeatureURI,
			Status:      types.StatusFailed,
			Error:       cause,
			StartTime:   now,
			EndTime:     now,
		})
	}
}

func itemID(item *types.WorkItem) string {
	if item == nil {
		return ""
	}
	return item.ID
}
