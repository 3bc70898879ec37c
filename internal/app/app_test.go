package app

import (
	"context"
	"testing"

	"assistdb/pkg/config"
	"assistdb/pkg/store"
)

func testEff(t *testing.T, addr string) config.EffectiveConfigResult {
	t.Helper()
	return config.EffectiveConfigResult{
		Config: &config.Config{},
		Addr:   addr,
		DBPath: t.TempDir(),
		Source: "flags",
	}
}

// TestRunClosesStoreOnServerError verifies a fatal listen error releases
// the pebble handle rather than leaving the store open.
func TestRunClosesStoreOnServerError(t *testing.T) {
	a, err := New(testEff(t, "this-is-not-a-listen-address"), "test", "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.Ready() {
		t.Fatalf("store not opened by New")
	}
	t.Cleanup(func() { _ = store.Close() })
	t.Cleanup(func() { config.SetRuntime(nil) })

	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected listen error from Run")
	}
	if store.Ready() {
		t.Fatalf("store left open after fatal server error")
	}
}

// TestRunClosesStoreOnShutdown verifies the context-cancel path also
// closes the store.
func TestRunClosesStoreOnShutdown(t *testing.T) {
	a, err := New(testEff(t, "127.0.0.1:0"), "test", "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	t.Cleanup(func() { config.SetRuntime(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.Ready() {
		t.Fatalf("store left open after shutdown")
	}
}
