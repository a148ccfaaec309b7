package main

import (
	"context"
	"testing"

	"scribe/internal/logging"
	"scribe/internal/testsupport"
)

func TestBuildAssemblesDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	d, err := build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.Addr() == "" {
		t.Fatal("expected api address after start")
	}
	d.Stop()
}
