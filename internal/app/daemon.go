package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/meetrec/internal/domain"
	"github.com/bft-labs/meetrec/pkg/log"
)

// DrainTimeout bounds how long workers get to finish in-flight relays and
// requests once the daemon stops serving.
const DrainTimeout = 30 * time.Second

// Phase is where a daemon is in its life.
type Phase int

const (
	// PhaseIdle is a daemon that was never started.
	PhaseIdle Phase = iota
	// PhaseServing runs every worker.
	PhaseServing
	// PhaseDraining waits for workers to return after cancellation.
	PhaseDraining
	// PhaseStopped is a daemon whose workers all returned cleanly.
	PhaseStopped
	// PhaseFailed is a daemon stopped by a worker error or a drain timeout.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseServing:
		return "serving"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PhaseObserver is told about every phase change.
type PhaseObserver interface {
	OnPhaseChange(from, to Phase, reason string)
}

// Worker is a long-running part of a daemon. Run returns when ctx is
// canceled or the worker fails.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc struct {
	WorkerName string
	Fn         func(ctx context.Context) error
}

func (w WorkerFunc) Name() string                  { return w.WorkerName }
func (w WorkerFunc) Run(ctx context.Context) error { return w.Fn(ctx) }

// Daemon runs the coordinator's workers together. The first worker to
// return, failed or not, drains the others.
type Daemon struct {
	workers      []Worker
	observer     PhaseObserver
	logger       log.Logger
	drainTimeout time.Duration

	mu      sync.Mutex
	phase   Phase
	cancel  context.CancelFunc
	err     error
	stopped chan struct{}
}

// NewDaemon creates a daemon over workers. observer may be nil.
func NewDaemon(logger log.Logger, observer PhaseObserver, workers ...Worker) *Daemon {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Daemon{
		workers:      workers,
		observer:     observer,
		logger:       logger,
		drainTimeout: DrainTimeout,
	}
}

// Start launches every worker and returns immediately. A stopped or failed
// daemon can be started again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.phase == PhaseServing || d.phase == PhaseDraining {
		d.mu.Unlock()
		return domain.ErrDaemonRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.err = nil
	d.stopped = make(chan struct{})
	stopped := d.stopped
	from := d.phase
	d.phase = PhaseServing
	d.mu.Unlock()
	d.emit(from, PhaseServing, "started")

	var wg sync.WaitGroup
	first := make(chan string, len(d.workers)+1)
	for _, w := range d.workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			err := w.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("Worker failed", log.String("worker", w.Name()), log.Err(err))
				d.setErr(err)
			} else {
				d.logger.Debug("Worker finished", log.String("worker", w.Name()))
			}
			first <- w.Name()
		}(w)
	}
	if len(d.workers) == 0 {
		first <- ""
	}

	go d.supervise(runCtx, cancel, &wg, first, stopped)
	return nil
}

// supervise drains the daemon once a worker returns or the daemon is
// canceled, then records the final phase.
func (d *Daemon) supervise(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, first <-chan string, stopped chan struct{}) {
	defer close(stopped)

	reason := "canceled"
	select {
	case name := <-first:
		reason = "worker " + name + " returned"
	case <-ctx.Done():
	}
	d.enter(PhaseDraining, reason)
	cancel()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(d.drainTimeout):
		d.logger.Warn("Workers did not finish in time", log.Duration("timeout", d.drainTimeout))
		d.setErr(domain.ErrShutdownTimeout)
	}

	if err := d.Err(); err != nil {
		d.enter(PhaseFailed, err.Error())
		return
	}
	d.enter(PhaseStopped, "drained")
}

// Stop cancels every worker and waits for the daemon to drain.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.phase != PhaseServing && d.phase != PhaseDraining {
		d.mu.Unlock()
		return domain.ErrDaemonStopped
	}
	d.cancel()
	stopped := d.stopped
	d.mu.Unlock()

	<-stopped
	return d.Err()
}

// Wait blocks until the daemon has drained and returns the first worker error.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped == nil {
		return nil
	}
	<-stopped
	return d.Err()
}

// Status returns the current phase.
func (d *Daemon) Status() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Err returns the first worker error.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Daemon) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

func (d *Daemon) enter(to Phase, reason string) {
	d.mu.Lock()
	from := d.phase
	d.phase = to
	d.mu.Unlock()
	d.emit(from, to, reason)
}

func (d *Daemon) emit(from, to Phase, reason string) {
	d.logger.Debug("Daemon phase changed",
		log.String("from", from.String()),
		log.String("to", to.String()),
		log.String("reason", reason),
	)
	if d.observer != nil {
		d.observer.OnPhaseChange(from, to, reason)
	}
}
