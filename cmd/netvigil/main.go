package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/hamed0406/netvigil/internal/report"
)

var version = "dev"

const usage = `netvigil inspects the connectivity monitor.

Usage: netvigil <command> [flags]

Commands:
  status             current connectivity level (probes once locally when no daemon answers)
  outages            outages in a window (--last 24h)
  stats              availability summary (--period 7d)
  trace [target]     run a path trace now (--remote asks the daemon)
  init               write a default config file
  config show|path   print the effective config or its location
  cleanup            prune stored history (--days N)
  version            print the version

Environment:
  API_BASE           daemon API (default http://127.0.0.1:8080)
  NETVIGIL_API_KEY   key sent as a bearer token
`

// errUsage marks a bad invocation; run maps it to exit code 2.
var errUsage = errors.New("usage")

type cli struct {
	out    io.Writer
	errOut io.Writer
	style  report.Style
	api    *client
	now    func() time.Time
}

func main() {
	c := &cli{
		out:    os.Stdout,
		errOut: os.Stderr,
		style:  report.Style{Fancy: isatty.IsTerminal(os.Stdout.Fd())},
		api:    newClient(),
		now:    time.Now,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.errOut, usage)
		return 2
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "status":
		err = c.status(ctx, rest)
	case "outages":
		err = c.outages(ctx, rest)
	case "stats":
		err = c.stats(ctx, rest)
	case "trace":
		err = c.trace(ctx, rest)
	case "init":
		err = c.initConfig(rest)
	case "config":
		err = c.configCmd(rest)
	case "cleanup":
		err = c.cleanup(ctx, rest)
	case "version", "--version", "-v":
		fmt.Fprintf(c.out, "netvigil %s\n", version)
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
	default:
		fmt.Fprintf(c.errOut, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(c.errOut, err)
		return 2
	default:
		fmt.Fprintf(c.errOut, "error: %s\n", err)
		return 1
	}
}

func (c *cli) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("netvigil "+name, pflag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// parse wraps flag errors so they exit with the usage code.
func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}
