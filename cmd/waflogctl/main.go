// Command waflogctl queries and drives a running waflog server.
//
//	waflogctl [--server URL] logs [--json] [--last N] [--class SQLi] [--blocked]
//	waflogctl [--server URL] simulate [-n COUNT]
//	waflogctl [--server URL] health
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/waflog/pkg/waflog"
)

const usage = `usage: waflogctl [--server URL] [--timeout D] <command> [flags]

commands:
  logs       print stored entries
  simulate   ask the server to generate entries
  health     print server status
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "waflogctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("waflogctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	serverURL := global.StringP("server", "s", envOr("WAFLOG_SERVER", "http://localhost:5000"), "waflog base URL (env WAFLOG_SERVER)")
	timeout := global.Duration("timeout", 30*time.Second, "per-request timeout")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	c := waflog.New(*serverURL, waflog.WithTimeout(*timeout))
	switch rest[0] {
	case "logs":
		return runLogs(ctx, c, rest[1:], out)
	case "simulate":
		return runSimulate(ctx, c, rest[1:], out)
	case "health":
		return runHealth(ctx, c, out)
	default:
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func runLogs(ctx context.Context, c *waflog.Client, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print entries as JSON lines")
	last := fs.IntP("last", "n", 0, "only the last N entries")
	class := fs.String("class", "", "only entries with this attack class")
	blocked := fs.Bool("blocked", false, "only blocked (403) requests")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := c.Logs(ctx)
	if err != nil {
		return err
	}
	entries = filterEntries(entries, waflog.AttackClass(*class), *blocked, *last)

	if *asJSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tSOURCE\tMETHOD\tPATH\tSTATUS\tATTACK\tCONFIDENCE")
	for _, e := range entries {
		r := e.Request
		fmt.Fprintf(tw, "%s\t%s:%d\t%s\t%s\t%d\t%s\t%.2f\n",
			r.Timestamp.Format(time.RFC3339), r.SourceIP, r.SourcePort, r.RequestMethod,
			r.RequestedPath, r.HTTPStatus, e.Detection.AttackClass, e.Detection.Confidence)
	}
	return tw.Flush()
}

// filterEntries keeps entries matching class (if set) and blocked (if set),
// then trims to the last n (if n > 0). Order is preserved.
func filterEntries(entries []waflog.Entry, class waflog.AttackClass, blocked bool, n int) []waflog.Entry {
	kept := entries[:0:0]
	for _, e := range entries {
		if class != "" && e.Detection.AttackClass != class {
			continue
		}
		if blocked && !e.Blocked() {
			continue
		}
		kept = append(kept, e)
	}
	if n > 0 && len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}

func runSimulate(ctx context.Context, c *waflog.Client, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	count := fs.IntP("count", "n", 1, "number of entries to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return fmt.Errorf("count must be positive, got %d", *count)
	}

	for i := 0; i < *count; i++ {
		msg, err := c.SimulateLog(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, msg)
	}
	return nil
}

func runHealth(ctx context.Context, c *waflog.Client, out io.Writer) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "status=%s entries=%d\n", h.Status, h.Entries)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
