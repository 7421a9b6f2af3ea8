// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/netvigil/internal/bootstrap"
	"github.com/hamed0406/netvigil/internal/config"
	"github.com/hamed0406/netvigil/internal/netinfo"
)

const dbCheckTimeout = 5 * time.Second

type checker struct {
	out, errOut io.Writer
	failed      bool

	lookPath func(string) (string, error)
	gateway  func() (string, error)
	openDB   func(ctx context.Context, dsn string) error
}

func (c *checker) fail(msg string) {
	fmt.Fprintln(c.errOut, "✖", msg)
	c.failed = true
}

func (c *checker) warn(msg string) { fmt.Fprintln(c.errOut, "⚠", msg) }
func (c *checker) ok(msg string)   { fmt.Fprintln(c.out, "✔", msg) }

func main() {
	c := &checker{
		out:      os.Stdout,
		errOut:   os.Stderr,
		lookPath: exec.LookPath,
		gateway:  netinfo.Discoverer(netinfo.DefaultDiscoverTimeout),
		openDB: func(ctx context.Context, dsn string) error {
			s, err := bootstrap.OpenStore(ctx, dsn, zap.NewNop())
			if err != nil {
				return err
			}
			return s.Close()
		},
	}
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, used, err := bootstrap.LoadConfig(path)
	if err != nil {
		c.fail(fmt.Sprintf("config %s: %s", used, err))
		os.Exit(1)
	}
	c.ok("config " + used)
	if !c.run(cfg) {
		os.Exit(1)
	}
}

// run checks cfg and the host. It reports whether the daemon can start.
func (c *checker) run(cfg config.Config) bool {
	if cfg.Endpoints.Gateway == config.GatewayAuto {
		if addr, err := c.gateway(); err != nil {
			c.warn("gateway not detected (" + err.Error() + "); only the configured targets will be probed.")
			cfg.Endpoints.Gateway = ""
		} else {
			c.ok("gateway " + addr)
			cfg.Endpoints.Gateway = addr
		}
	}

	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "; ") {
			c.fail(line)
		}
	} else {
		c.ok(cfg.Describe())
	}
	for _, w := range cfg.Warnings() {
		c.warn(w)
	}

	if cfg.Probe.Mode != config.ProbeICMP {
		if p, err := c.lookPath("ping"); err != nil {
			c.fail("ping not found on PATH (set probe.mode: icmp to use raw sockets).")
		} else {
			c.ok("ping " + p)
		}
	}
	tr := "traceroute"
	if runtime.GOOS == "windows" {
		tr = "tracert"
	}
	if p, err := c.lookPath(tr); err != nil {
		c.warn(tr + " not found on PATH; outages will be recorded without a failing hop.")
	} else {
		c.ok(tr + " " + p)
	}

	if len(cfg.API.AdminKeys) == 0 {
		c.warn("ADMIN_API_KEYS is empty; POST /api/trace is open to anyone who can reach " + cfg.API.Addr + ".")
	}
	if len(cfg.API.PublicKeys) == 0 {
		c.warn("PUBLIC_API_KEYS is empty; read routes are unauthenticated.")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			c.warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.Storage.DatabaseURL == "" {
		c.warn("DATABASE_URL empty; history is kept in memory and lost on restart.")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), dbCheckTimeout)
		defer cancel()
		if err := c.openDB(ctx, cfg.Storage.DatabaseURL); err != nil {
			c.fail("database: " + err.Error())
		} else {
			c.ok("database reachable and migrated")
		}
	}

	if len(cfg.API.AllowedOrigins) == 0 {
		c.warn("ALLOWED_ORIGINS empty; CORS allows any origin.")
	} else {
		c.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.API.AllowedOrigins, ","))
	}

	if c.failed {
		return false
	}
	c.ok("preflight passed")
	return true
}
