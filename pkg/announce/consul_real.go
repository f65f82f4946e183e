//go:build consul

package announce

import (
	"context"
	"encoding/json"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"

	"fsrewire/pkg/model"
)

// DefaultConsulPrefix is prepended to the host name when no key is given.
const DefaultConsulPrefix = "fsrewire/hosts/"

// Consul stores the endpoint record under a KV key (requires build tag consul).
type Consul struct {
	cli    *consulapi.Client
	key    string
	prefix string
}

// NewConsul connects to addr; an empty key uses DefaultConsulPrefix plus the host name.
func NewConsul(addr, key, prefix string) (Announcer, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	if key == "" {
		key = DefaultConsulPrefix + NewRecord(model.Endpoint{}, prefix).Host
	}
	return &Consul{cli: cli, key: key, prefix: prefix}, nil
}

func (c *Consul) Announce(ctx context.Context, ep model.Endpoint) error {
	b, err := json.Marshal(NewRecord(ep, c.prefix))
	if err != nil {
		return err
	}
	opts := (&consulapi.WriteOptions{}).WithContext(ctx)
	if _, err := c.cli.KV().Put(&consulapi.KVPair{Key: c.key, Value: b}, opts); err != nil {
		return fmt.Errorf("consul put %s: %w", c.key, err)
	}
	return nil
}

// Close removes the record.
func (c *Consul) Close() error {
	if _, err := c.cli.KV().Delete(c.key, nil); err != nil {
		return fmt.Errorf("consul delete %s: %w", c.key, err)
	}
	return nil
}
