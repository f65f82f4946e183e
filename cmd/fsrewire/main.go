package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fsrewire/pkg/agent"
	"fsrewire/pkg/announce"
	"fsrewire/pkg/api"
	"fsrewire/pkg/beacon"
	"fsrewire/pkg/config"
	"fsrewire/pkg/journal"
	"fsrewire/pkg/model"
	"fsrewire/pkg/msfs"
	"fsrewire/pkg/simconnect"
	"fsrewire/pkg/version"
)

func main() {
	cfg, cfgFile, err := config.Load(config.PathFromArgs(os.Args[1:]))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	cfgFlag := config.BindFileFlag(flag.CommandLine, cfgFile)
	showVersion := flag.Bool("v", false, "print version and exit")
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfgFlag.Check(); err != nil {
		log.Fatalf("config flag: %v", err)
	}

	if *showVersion {
		log.Printf("fsrewire version=%s", version.String())
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	log.Printf("fsrewire version=%s config=%s", version.Build, firstNonEmpty(cfgFile, "defaults"))

	path, err := resolvePath(cfg.SimConnectPath)
	if err != nil {
		log.Fatalf("SimConnect.xml not found: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var jr *journal.Journal
	if cfg.Journal.Driver != config.JournalOff {
		jr, err = journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			log.Printf("journal disabled: %v", err)
			jr = nil
		} else {
			defer jr.Close()
		}
	}

	b := beacon.New(beacon.Config{
		Prefix:   cfg.Beacon.Prefix,
		Target:   cfg.Beacon.Target,
		Bind:     cfg.Beacon.Bind,
		Interval: cfg.Beacon.Interval,
	})

	opts := agent.Options{
		Path: path,
		Reconciler: simconnect.NewReconciler(simconnect.Defaults{
			Address: cfg.Server.Address,
			Port:    cfg.Server.Port,
		}),
		Beacon:    b,
		Sim:       msfs.NewDetector(),
		Announcer: buildAnnouncer(cfg),
		Watch:     cfg.Watch,
	}
	if jr != nil {
		opts.Journal = jr
	}

	var srv *api.Server
	opts.Notify = func(st model.State) {
		if srv != nil {
			srv.Hub.Broadcast(api.WSMessage{Type: "status", Payload: st})
		}
	}
	a := agent.New(opts)

	if cfg.API.Listen != "" {
		var reader api.JournalReader
		if jr != nil {
			reader = jr
		}
		srv, err = api.Listen(cfg.API.Listen, a, reader)
		if err != nil {
			log.Printf("status api disabled: %v", err)
			srv = nil
		} else {
			go func() {
				if err := srv.Serve(ctx); err != nil {
					log.Printf("status api stopped: %v", err)
				}
			}()
		}
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
	log.Printf("fsrewire stopped")
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		return simconnect.CheckPath(explicit)
	}
	return simconnect.DefaultPath()
}

func buildAnnouncer(cfg config.Config) announce.Announcer {
	var out announce.Multi
	if cfg.MDNS.Enabled {
		out = append(out, announce.NewMDNS(cfg.MDNS.Instance, cfg.Beacon.Prefix))
	}
	if cfg.Consul.Enabled {
		c, err := announce.NewConsul(cfg.Consul.Addr, cfg.Consul.Key, cfg.Beacon.Prefix)
		if err != nil {
			log.Printf("consul announce disabled: %v", err)
		} else {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
