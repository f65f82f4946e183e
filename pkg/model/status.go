package model

import "time"

// BeaconStatus is one event on a beacon status channel.
type BeaconStatus string

const (
	BeaconOK    BeaconStatus = "ok"
	BeaconError BeaconStatus = "error"
)

// HostStatus is the effective state of the agent as shown to the user.
type HostStatus string

const (
	StatusNeutral HostStatus = "neutral" // reconciliation not finished yet
	StatusRunning HostStatus = "running"
	StatusWarning HostStatus = "warning" // file changed while the simulator was running
	StatusError   HostStatus = "error"
)

// State is the status plus a human readable message.
type State struct {
	Status    HostStatus `json:"status"`
	Message   string     `json:"message"`
	Endpoint  *Endpoint  `json:"endpoint,omitempty"`
	Beacon    string     `json:"beacon,omitempty"` // idle/broadcasting/stopped
	UpdatedAt time.Time  `json:"updatedAt"`
}
