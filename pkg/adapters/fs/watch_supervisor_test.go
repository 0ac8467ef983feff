package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/keel/pkg/core"
)

func TestWatcherSupervisorRestarts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := NewAuditLog(Config{Path: t.TempDir(), SystemDir: ".keel"})
	if err := log.Initialize(ctx); err != nil {
		t.Fatalf("failed to init log: %v", err)
	}

	events := make(chan core.IntegrityEvent)
	created := make(chan *watchWorker, 2)

	spec := supervisor.Spec{
		Name: "tamper-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			w := newWatchWorker(log, "*", events)
			created <- w
			return w, nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      1,
			ResetDuration:   50 * time.Millisecond,
			MaxRestarts:     2,
			MaxDuration:     200 * time.Millisecond,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	sup := supervisor.New("test-watcher", supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}

	first := waitForWorker(t, created, "first")
	waitForWatcher(t, log, true)

	waitForWatcherInit(t, first)
	_ = first.watcher.Close()

	second := waitForWorker(t, created, "second")
	if first == second {
		t.Fatalf("expected supervisor to restart watcher with a new instance")
	}
	waitForWatcher(t, log, true)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		t.Fatalf("failed to stop supervisor: %v", err)
	}
}

func TestWatchReportsTampering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := NewAuditLog(Config{Path: t.TempDir(), SystemDir: ".keel"})
	for i := 0; i < 3; i++ {
		if _, err := log.Append(ctx, "payments", "PAYMENT", core.Object{"amount": core.Int(100 + i)}); err != nil {
			t.Fatal(err)
		}
	}

	events, err := log.Watch(ctx, "pay*")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	waitForWatcher(t, log, true)

	// Appends through the log keep the chain valid and produce no event.
	if _, err := log.Append(ctx, "payments", "PAYMENT", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected event for a valid append: %v", e)
	case <-time.After(200 * time.Millisecond):
	}

	// Rewrite history behind the log's back.
	path := filepath.Join(log.Path, "payments.log")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), `"amount":101`, `"amount":1`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Category != "payments" {
			t.Errorf("Expected category payments, got %s", e.Category)
		}
		if e.Result.Valid {
			t.Error("Expected an invalid result")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for integrity event")
	}

	cancel()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel was not closed after cancel")
	}
	waitForWatcher(t, log, false)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	log := NewAuditLog(Config{Path: t.TempDir(), SystemDir: ".keel"})
	w := newWatchWorker(log, "pay*", nil)

	cases := map[string]string{
		"payments.log":      "payments",
		"uploads.log":       "",
		"index.json":        "",
		"keel-tmp-123":      "",
		"pay.ments.log":     "",
		"payments.log.swap": "",
	}
	for name, want := range cases {
		ev := fsnotify.Event{Name: filepath.Join(log.Path, name), Op: fsnotify.Write}
		if got := w.category(ev); got != want {
			t.Errorf("category(%s) = %q, want %q", name, got, want)
		}
	}
}

func waitForWorker(t *testing.T, ch <-chan *watchWorker, label string) *watchWorker {
	t.Helper()

	select {
	case w := <-ch:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s worker", label)
		return nil
	}
}

func waitForWatcherInit(t *testing.T, w *watchWorker) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if w.watcher != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher initialization")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func waitForWatcher(t *testing.T, log *AuditLog, expected bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		state, ok := log.State().(AuditLogState)
		if ok && state.WatcherActive == expected {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for watcher state = %v", expected)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
