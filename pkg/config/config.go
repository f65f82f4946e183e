// Package config loads agent settings. Later sources win:
// defaults, fsrewire.yaml, .env and the environment, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fsrewire/pkg/beacon"
	"fsrewire/pkg/simconnect"
)

const (
	DefaultFile = "fsrewire.yaml"
	EnvPrefix   = "FSREWIRE_"

	JournalOff = "none"
)

var ErrNotFound = errors.New("config file not found")

type Config struct {
	// SimConnectPath skips path resolution when set.
	SimConnectPath string `yaml:"simconnect_path"`

	Server struct {
		Address string `yaml:"address"`
		Port    string `yaml:"port"`
	} `yaml:"server"`

	Beacon struct {
		Prefix   string        `yaml:"prefix"`
		Target   string        `yaml:"target"`
		Bind     string        `yaml:"bind"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"beacon"`

	MDNS struct {
		Enabled  bool   `yaml:"enabled"`
		Instance string `yaml:"instance"`
	} `yaml:"mdns"`

	Consul struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		Key     string `yaml:"key"`
	} `yaml:"consul"`

	Journal struct {
		Driver string `yaml:"driver"` // sqlite, mysql or none
		DSN    string `yaml:"dsn"`
	} `yaml:"journal"`

	API struct {
		Listen string `yaml:"listen"` // empty disables
	} `yaml:"api"`

	Watch bool `yaml:"watch"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	d := simconnect.DefaultValues()
	c.Server.Address = d.Address
	c.Server.Port = d.Port
	b := beacon.DefaultConfig()
	c.Beacon.Prefix = b.Prefix
	c.Beacon.Target = b.Target
	c.Beacon.Bind = b.Bind
	c.Beacon.Interval = b.Interval
	c.Journal.Driver = "sqlite"
	c.API.Listen = "127.0.0.1:8765"
	return c
}

// FindFile looks for name in the working directory, ./configs and the
// executable's directory.
func FindFile(name string) (string, error) {
	candidates := []string{
		name,
		filepath.Join("configs", name),
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), name))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate, nil
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrNotFound, name, candidates)
}

// LoadFile overlays the YAML file at path onto c.
func LoadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds the configuration from defaults, the YAML file and the
// environment. An explicit file must exist; otherwise DefaultFile is optional.
// It returns the file actually used, if any.
func Load(file string) (Config, string, error) {
	c := Default()
	if err := LoadDotEnv(".env"); err != nil {
		return c, "", fmt.Errorf("load .env: %w", err)
	}
	if file == "" {
		file = os.Getenv(EnvPrefix + "CONFIG")
	}
	if file == "" {
		if found, err := FindFile(DefaultFile); err == nil {
			file = found
		}
	}
	if file != "" {
		if err := LoadFile(file, &c); err != nil {
			return c, file, err
		}
	}
	if err := ApplyEnv(&c, os.Getenv); err != nil {
		return c, file, err
	}
	return c, file, nil
}

// ApplyEnv overlays FSREWIRE_* variables onto c.
func ApplyEnv(c *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v := getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SIMCONNECT_PATH", &c.SimConnectPath)
	str("ADDRESS", &c.Server.Address)
	str("PORT", &c.Server.Port)
	str("BEACON_PREFIX", &c.Beacon.Prefix)
	str("BEACON_TARGET", &c.Beacon.Target)
	str("BEACON_BIND", &c.Beacon.Bind)
	if v := getenv(EnvPrefix + "BEACON_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBEACON_INTERVAL: %w", EnvPrefix, err))
		} else {
			c.Beacon.Interval = d
		}
	}
	boolean("MDNS", &c.MDNS.Enabled)
	str("MDNS_INSTANCE", &c.MDNS.Instance)
	boolean("CONSUL", &c.Consul.Enabled)
	str("CONSUL_ADDR", &c.Consul.Addr)
	str("CONSUL_KEY", &c.Consul.Key)
	str("JOURNAL_DRIVER", &c.Journal.Driver)
	str("JOURNAL_DSN", &c.Journal.DSN)
	str("API_LISTEN", &c.API.Listen)
	boolean("WATCH", &c.Watch)
	return errors.Join(errs...)
}

// BindFlags registers flags whose defaults are the current values of c, so
// parsing fs leaves unset options untouched.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SimConnectPath, "simconnect", c.SimConnectPath, "SimConnect.xml path (skips lookup in the user profile)")
	fs.StringVar(&c.Server.Address, "address", c.Server.Address, "address SimConnect binds to")
	fs.StringVar(&c.Server.Port, "port", c.Server.Port, "port used when the file has none")
	fs.StringVar(&c.Beacon.Prefix, "beacon-prefix", c.Beacon.Prefix, "beacon payload tag")
	fs.StringVar(&c.Beacon.Target, "beacon-target", c.Beacon.Target, "beacon destination host:port")
	fs.StringVar(&c.Beacon.Bind, "beacon-bind", c.Beacon.Bind, "beacon local socket address")
	fs.DurationVar(&c.Beacon.Interval, "beacon-interval", c.Beacon.Interval, "pause between beacon datagrams")
	fs.BoolVar(&c.MDNS.Enabled, "mdns", c.MDNS.Enabled, "announce the endpoint via mDNS")
	fs.StringVar(&c.MDNS.Instance, "mdns-instance", c.MDNS.Instance, "mDNS instance name (defaults to host name)")
	fs.BoolVar(&c.Consul.Enabled, "consul", c.Consul.Enabled, "publish the endpoint to Consul KV (build tag consul)")
	fs.StringVar(&c.Consul.Addr, "consul-addr", c.Consul.Addr, "Consul address")
	fs.StringVar(&c.Consul.Key, "consul-key", c.Consul.Key, "Consul KV key")
	fs.StringVar(&c.Journal.Driver, "journal", c.Journal.Driver, "journal driver: sqlite, mysql or none")
	fs.StringVar(&c.Journal.DSN, "journal-dsn", c.Journal.DSN, "journal DSN (sqlite file or mysql DSN)")
	fs.StringVar(&c.API.Listen, "api", c.API.Listen, "status API listen address (empty disables)")
	fs.BoolVar(&c.Watch, "watch", c.Watch, "re-reconcile when SimConnect.xml is rewritten")
}

// FileFlag is the -config flag. The file is read before the other flags are
// parsed, from PathFromArgs, so the parsed value is only compared against it.
type FileFlag struct {
	value  string
	loaded string
}

// BindFileFlag registers -config on fs with loaded, the file Load used, as default.
func BindFileFlag(fs *flag.FlagSet, loaded string) *FileFlag {
	f := &FileFlag{loaded: loaded}
	fs.StringVar(&f.value, "config", loaded, "YAML config file (env "+EnvPrefix+"CONFIG)")
	return f
}

// Check reports a -config value that differs from the file that was loaded.
func (f *FileFlag) Check() error {
	if f.value != f.loaded {
		return fmt.Errorf("-config %q was parsed but %q was loaded", f.value, f.loaded)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(strings.TrimSpace(c.Server.Port))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Beacon.Interval <= 0 {
		return fmt.Errorf("invalid beacon interval %s", c.Beacon.Interval)
	}
	if c.Beacon.Prefix == "" || strings.Contains(c.Beacon.Prefix, ":") {
		return fmt.Errorf("invalid beacon prefix %q", c.Beacon.Prefix)
	}
	switch c.Journal.Driver {
	case "", "sqlite", "mysql", JournalOff:
	default:
		return fmt.Errorf("invalid journal driver %q", c.Journal.Driver)
	}
	return nil
}

// PathFromArgs returns the value of -config in args, if present.
func PathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
