// Package agent drives one host: reconcile SimConnect.xml, derive the host
// status, start the beacon and keep the optional announcers, journal and
// watcher in step.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fsrewire/pkg/announce"
	"fsrewire/pkg/beacon"
	"fsrewire/pkg/journal"
	"fsrewire/pkg/model"
	"fsrewire/pkg/simconnect"
	"fsrewire/pkg/watch"
)

const (
	TriggerStartup = "startup"
	TriggerWatch   = "watch"

	BeaconIdle         = "idle"
	BeaconBroadcasting = "broadcasting"
	BeaconStopped      = "stopped"

	msgChecking = "Checking..."
	msgRestart  = "SimConnect.xml was updated while the simulator is running; restart the simulator to apply it"
)

// SimDetector reports whether the simulator is running.
type SimDetector interface {
	Running(ctx context.Context) bool
}

// Recorder persists reconcile runs.
type Recorder interface {
	Record(ctx context.Context, e model.ReconcileEntry) (model.ReconcileEntry, error)
}

// Options wires an Agent. Path, Reconciler and Beacon are required; the rest
// may be nil.
type Options struct {
	Path       string
	Reconciler *simconnect.Reconciler
	Beacon     *beacon.Beacon
	Sim        SimDetector
	Journal    Recorder
	Announcer  announce.Announcer
	// Notify is called with every new state.
	Notify   func(model.State)
	Watch    bool
	Debounce time.Duration
}

// Agent holds the host state. It is safe for concurrent use.
type Agent struct {
	opts Options

	mu       sync.RWMutex
	state    model.State
	endpoint *model.Endpoint
	started  bool // beacon launched
}

func New(opts Options) *Agent {
	if opts.Debounce <= 0 {
		opts.Debounce = watch.DefaultDebounce
	}
	return &Agent{
		opts: opts,
		state: model.State{
			Status:    model.StatusNeutral,
			Message:   msgChecking,
			Beacon:    BeaconIdle,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

// State returns a copy of the current state.
func (a *Agent) State() model.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := a.state
	if st.Endpoint != nil {
		ep := *st.Endpoint
		st.Endpoint = &ep
	}
	return st
}

// Run reconciles once, starts the beacon on success and blocks until ctx is
// done. A failed startup reconcile leaves the agent in the error state; with
// watching enabled a later successful reconcile still starts the beacon.
func (a *Agent) Run(ctx context.Context) error {
	if a.opts.Path == "" || a.opts.Reconciler == nil || a.opts.Beacon == nil {
		return fmt.Errorf("agent: path, reconciler and beacon are required")
	}
	if _, err := a.Reconcile(ctx, TriggerStartup); err != nil {
		log.Printf("reconcile failed path=%s kind=%s: %v", a.opts.Path, simconnect.Kind(err), err)
	}
	if a.opts.Watch {
		if err := watch.Start(ctx, a.opts.Path, a.opts.Debounce, func(ctx context.Context) {
			if _, err := a.Reconcile(ctx, TriggerWatch); err != nil {
				log.Printf("reconcile after change failed path=%s: %v", a.opts.Path, err)
			}
		}); err != nil {
			log.Printf("file watch disabled: %v", err)
		}
	}

	<-ctx.Done()
	if a.opts.Announcer != nil {
		if err := a.opts.Announcer.Close(); err != nil {
			log.Printf("announce close failed: %v", err)
		}
	}
	return nil
}

// Reconcile runs the reconciler, records the run and updates the state. The
// first successful run starts the beacon.
func (a *Agent) Reconcile(ctx context.Context, trigger string) (simconnect.Result, error) {
	simRunning := a.opts.Sim != nil && a.opts.Sim.Running(ctx)

	r := a.opts.Reconciler
	if trigger == TriggerWatch {
		// our own write must not trigger another round
		r = simconnect.NewReconciler(r.Defaults())
		r.SkipUnchanged = true
	}
	res, err := r.Reconcile(a.opts.Path)
	if err != nil {
		a.record(ctx, journal.Entry(trigger, res, err))
		a.setError(err.Error())
		return res, err
	}
	if trigger == TriggerWatch && !res.Changed && a.settled() {
		return res, nil
	}
	a.record(ctx, journal.Entry(trigger, res, nil))
	log.Printf("reconciled path=%s trigger=%s endpoint=%s changed=%v created=%v sim_running=%v",
		res.Path, trigger, res.Endpoint, res.Changed, res.Created, simRunning)

	a.applyResult(res, simRunning)
	a.announce(ctx, res.Endpoint)
	a.startBeacon(ctx, res.Endpoint.Port)
	return res, nil
}

// settled reports a previous successful reconcile that is still in effect.
func (a *Agent) settled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.endpoint != nil && a.state.Status != model.StatusError
}

// applyResult sets running or warning for a successful reconcile.
func (a *Agent) applyResult(res simconnect.Result, simRunning bool) {
	ep := res.Endpoint
	a.mu.Lock()
	prev := a.endpoint
	a.endpoint = &ep
	if a.started && prev != nil && prev.Port != ep.Port {
		log.Printf("port changed from %s to %s; restart the agent to broadcast it", prev.Port, ep.Port)
	}
	if a.state.Status == model.StatusError && a.state.Beacon == BeaconStopped {
		// a dead beacon stays an error until restart
		a.state.Endpoint = &ep
		a.mu.Unlock()
		return
	}
	a.state.Endpoint = &ep
	if res.Changed && simRunning {
		a.state.Status = model.StatusWarning
		a.state.Message = msgRestart
	} else {
		a.state.Status = model.StatusRunning
		a.state.Message = "SimConnect is exposed on " + ep.String()
	}
	st := a.touch()
	a.mu.Unlock()
	a.notify(st)
}

func (a *Agent) setError(msg string) {
	a.mu.Lock()
	a.state.Status = model.StatusError
	a.state.Message = msg
	st := a.touch()
	a.mu.Unlock()
	a.notify(st)
}

// touch stamps the state and returns a copy; callers hold mu.
func (a *Agent) touch() model.State {
	a.state.UpdatedAt = time.Now().UTC()
	st := a.state
	if st.Endpoint != nil {
		ep := *st.Endpoint
		st.Endpoint = &ep
	}
	return st
}

func (a *Agent) notify(st model.State) {
	if a.opts.Notify != nil {
		a.opts.Notify(st)
	}
}

func (a *Agent) record(ctx context.Context, e model.ReconcileEntry) {
	if a.opts.Journal == nil {
		return
	}
	if _, err := a.opts.Journal.Record(ctx, e); err != nil {
		log.Printf("journal record failed: %v", err)
	}
}

func (a *Agent) announce(ctx context.Context, ep model.Endpoint) {
	if a.opts.Announcer == nil {
		return
	}
	if err := a.opts.Announcer.Announce(ctx, ep); err != nil {
		log.Printf("announce failed endpoint=%s: %v", ep, err)
	}
}
