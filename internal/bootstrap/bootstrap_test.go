package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/probe"
	"github.com/hamed0406/netvigil/internal/repo/memory"
)

func TestLoadConfig_DefaultPathAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NETVIGIL_HOME", home)
	t.Setenv("NETVIGIL_ENV", "test")
	t.Setenv("API_ADDR", ":9999")

	cfg, path, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != filepath.Join(home, "test", "config.yaml") {
		t.Fatalf("unexpected path %q", path)
	}
	if cfg.API.Addr != ":9999" {
		t.Fatalf("env override not applied: %q", cfg.API.Addr)
	}
}

func TestNewLogger_DefaultsToEnvironmentLogDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("NETVIGIL_HOME", home)
	t.Setenv("NETVIGIL_ENV", "dev")

	log, err := NewLogger(config.Default(), false)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hello")
	_ = log.Sync()
	if _, err := os.Stat(filepath.Join(home, "dev", "logs")); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
}

func TestOpenStore_MemoryWithoutDSN(t *testing.T) {
	s, err := OpenStore(context.Background(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("want memory store, got %T", s)
	}
}

func TestNewProber_ExecByDefault(t *testing.T) {
	p, err := NewProber(context.Background(), config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewProber: %v", err)
	}
	if _, ok := p.(*probe.ExecPinger); !ok {
		t.Fatalf("want exec pinger, got %T", p)
	}
}
