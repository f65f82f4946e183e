package agent

import (
	"context"
	"log"

	"fsrewire/pkg/model"
)

// startBeacon launches the beacon once per agent.
func (a *Agent) startBeacon(ctx context.Context, port string) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.consumeBeacon(a.opts.Beacon.Start(ctx, port))
}

// consumeBeacon folds beacon events into the state. Only the first ok is a
// transition; an error stops the beacon for good.
func (a *Agent) consumeBeacon(ch <-chan model.BeaconStatus) {
	for s := range ch {
		switch s {
		case model.BeaconOK:
			a.mu.Lock()
			if a.state.Beacon == BeaconBroadcasting {
				a.mu.Unlock()
				continue
			}
			a.state.Beacon = BeaconBroadcasting
			st := a.touch()
			a.mu.Unlock()
			a.notify(st)
		case model.BeaconError:
			a.mu.Lock()
			a.state.Beacon = BeaconStopped
			a.state.Status = model.StatusError
			a.state.Message = "discovery beacon stopped; clients cannot find this host"
			st := a.touch()
			a.mu.Unlock()
			log.Printf("beacon stopped")
			a.notify(st)
		}
	}
}
