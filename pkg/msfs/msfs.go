// Package msfs detects whether Microsoft Flight Simulator is running on this host.
package msfs

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// PipePath is the named pipe SimConnect serves while the simulator runs.
const PipePath = `\\.\pipe\Microsoft Flight Simulator\SimConnect`

// ProcessNames are the simulator executables, compared case-insensitively.
var ProcessNames = []string{"FlightSimulator.exe", "FlightSimulator2024.exe"}

// Detector checks the SimConnect pipe first and falls back to the process table.
type Detector struct {
	Pipe  string
	Names []string

	stat      func(string) (os.FileInfo, error)
	processes func(context.Context) ([]string, error)
}

// NewDetector returns a Detector for the default pipe and executables.
func NewDetector() *Detector {
	return &Detector{
		Pipe:      PipePath,
		Names:     ProcessNames,
		stat:      os.Stat,
		processes: processNames,
	}
}

// Running reports whether the simulator is up. Lookup errors count as not running.
func (d *Detector) Running(ctx context.Context) bool {
	if d.Pipe != "" {
		if _, err := d.stat(d.Pipe); err == nil {
			return true
		}
	}
	names, err := d.processes(ctx)
	if err != nil {
		log.Printf("msfs process scan failed: %v", err)
		return false
	}
	for _, n := range names {
		for _, want := range d.Names {
			if strings.EqualFold(n, want) {
				return true
			}
		}
	}
	return false
}

func processNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		// processes can exit between listing and lookup
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
