package main

import (
	"bytes"
	"strings"
	"testing"

	"pkt.systems/countd"
	"pkt.systems/countd/internal/version"
	"pkt.systems/pslog"
)

func TestBindConfigFlagDefaults(t *testing.T) {
	newRootCommand(pslog.NoopLogger())
	var cfg countd.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bind config: %v", err)
	}
	if cfg.Listen != countd.DefaultListen {
		t.Fatalf("listen %q", cfg.Listen)
	}
	if cfg.Store != countd.DefaultStore {
		t.Fatalf("store %q", cfg.Store)
	}
	if cfg.Queue != countd.DefaultQueue {
		t.Fatalf("queue %q", cfg.Queue)
	}
	if cfg.AuthMode != countd.DefaultAuthMode {
		t.Fatalf("auth mode %q", cfg.AuthMode)
	}
	if cfg.JSONMaxBytes <= 0 {
		t.Fatalf("json max %d", cfg.JSONMaxBytes)
	}
}

func TestBindConfigEnvOverride(t *testing.T) {
	newRootCommand(pslog.NoopLogger())
	t.Setenv("COUNTD_STORE", "disk:///var/lib/countd-data")
	t.Setenv("COUNTD_AUTH_MODE", "header")
	var cfg countd.Config
	if err := bindConfig(&cfg); err != nil {
		t.Fatalf("bind config: %v", err)
	}
	if cfg.Store != "disk:///var/lib/countd-data" {
		t.Fatalf("store %q", cfg.Store)
	}
	if cfg.AuthMode != "header" {
		t.Fatalf("auth mode %q", cfg.AuthMode)
	}
}

func TestHumanizeBytesRoundTrip(t *testing.T) {
	if got := humanizeBytes(countd.DefaultJSONMaxBytes); got == "" || strings.Contains(got, " ") {
		t.Fatalf("unexpected formatting %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, version.Module()) {
		t.Fatalf("output %q missing module path", out)
	}
	if !strings.Contains(out, version.Current()) {
		t.Fatalf("output %q missing version", out)
	}
}
