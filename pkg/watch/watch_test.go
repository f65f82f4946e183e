package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDebouncedCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SimConnect.xml")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	if err := Start(ctx, path, 100*time.Millisecond, func(context.Context) {
		calls.Add(1)
		fired <- struct{}{}
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{'b', byte('0' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called after writes")
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("callback ran %d times for one burst", n)
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SimConnect.xml")
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	if err := Start(ctx, path, 50*time.Millisecond, func(context.Context) { calls.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.xml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("callback ran %d times for an unrelated file", n)
	}
}

func TestStartMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "SimConnect.xml")
	if err := Start(context.Background(), missing, 0, func(context.Context) {}); err == nil {
		t.Fatal("watching a missing directory succeeded")
	}
}

func TestRelevant(t *testing.T) {
	target, _ := filepath.Abs(filepath.Join("x", "SimConnect.xml"))
	cases := []struct {
		ev   fsnotify.Event
		want bool
	}{
		{fsnotify.Event{Name: target, Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: target, Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: target, Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: target, Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: target + ".tmp", Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		if got := relevant(tc.ev, target); got != tc.want {
			t.Fatalf("relevant(%v) = %v, want %v", tc.ev, got, tc.want)
		}
	}
}
