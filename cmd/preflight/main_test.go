package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hamed0406/netvigil/internal/config"
)

func newChecker() (*checker, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return &checker{
		out:      &out,
		errOut:   &errOut,
		lookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		gateway:  func() (string, error) { return "192.168.1.1", nil },
		openDB:   func(context.Context, string) error { return nil },
	}, &out, &errOut
}

func TestPreflight_Passes(t *testing.T) {
	c, out, errOut := newChecker()
	cfg := config.Default()
	cfg.Endpoints.Gateway = config.GatewayAuto
	cfg.Storage.DatabaseURL = "postgres://x"
	cfg.API.PublicKeys = []string{"p"}
	cfg.API.AdminKeys = []string{"a"}

	if !c.run(cfg) {
		t.Fatalf("want pass, stderr:\n%s", errOut.String())
	}
	for _, want := range []string{"✔ gateway 192.168.1.1", "✔ ping /usr/bin/ping", "database reachable", "preflight passed"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestPreflight_FailsWithoutPingOrDatabase(t *testing.T) {
	c, _, errOut := newChecker()
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	c.openDB = func(context.Context, string) error { return errors.New("connection refused") }
	cfg := config.Default()
	cfg.Storage.DatabaseURL = "postgres://x"

	if c.run(cfg) {
		t.Fatalf("want failure")
	}
	for _, want := range []string{"✖ ping not found", "✖ database: connection refused", "⚠ traceroute not found"} {
		if !strings.Contains(errOut.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, errOut.String())
		}
	}
}

func TestPreflight_InvalidConfig(t *testing.T) {
	c, _, errOut := newChecker()
	cfg := config.Default()
	cfg.Monitor.PingIntervalMS = 0
	cfg.Endpoints.Targets = nil

	if c.run(cfg) {
		t.Fatalf("want failure")
	}
	if strings.Count(errOut.String(), "✖") < 2 {
		t.Fatalf("want one line per problem, got:\n%s", errOut.String())
	}
}

func TestPreflight_ICMPModeSkipsPing(t *testing.T) {
	c, out, _ := newChecker()
	cfg := config.Default()
	cfg.Probe.Mode = config.ProbeICMP
	c.run(cfg)
	if strings.Contains(out.String(), "✔ ping ") {
		t.Fatalf("ping binary checked in icmp mode:\n%s", out.String())
	}
}
