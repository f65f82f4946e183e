// Package announce publishes the reconciled SimConnect endpoint to discovery
// backends other than the UDP beacon.
package announce

import (
	"context"
	"errors"
	"os"
	"time"

	"fsrewire/pkg/model"
	"fsrewire/pkg/version"
)

// Announcer publishes an endpoint until closed.
type Announcer interface {
	Announce(ctx context.Context, ep model.Endpoint) error
	Close() error
}

// Record is what backends with a value store keep for the host.
type Record struct {
	Host      string    `json:"host"`
	Address   string    `json:"address"`
	Port      string    `json:"port"`
	Prefix    string    `json:"prefix"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRecord describes ep as announced by this host.
func NewRecord(ep model.Endpoint, prefix string) Record {
	host, _ := os.Hostname()
	return Record{
		Host:      host,
		Address:   ep.Address,
		Port:      ep.Port,
		Prefix:    prefix,
		Version:   version.Build,
		UpdatedAt: time.Now().UTC(),
	}
}

// Nop announces nothing.
type Nop struct{}

func (Nop) Announce(context.Context, model.Endpoint) error { return nil }
func (Nop) Close() error                                   { return nil }

// Multi fans out to several announcers. Every member is tried; errors are joined.
type Multi []Announcer

func (m Multi) Announce(ctx context.Context, ep model.Endpoint) error {
	var errs []error
	for _, a := range m {
		if err := a.Announce(ctx, ep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
