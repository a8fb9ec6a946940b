package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/scooter-lacroix/leindex/internal/config"
	"github.com/scooter-lacroix/leindex/internal/engine"
	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
	"github.com/scooter-lacroix/leindex/internal/mcpserver"
	"github.com/scooter-lacroix/leindex/internal/search"
	"github.com/scooter-lacroix/leindex/internal/version"
)

// Exit codes: 0 success, 2 usage error, 3 runtime error, 4 cancellation or
// timeout.
const (
	exitOK      = 0
	exitUsage   = 2
	exitRuntime = 3
	exitCancel  = 4
)

func main() {
	app := &cli.App{
		Name:                   "leindex",
		Usage:                  "Code intelligence engine: index, search, analyze",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root (defaults to the current directory)",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Operation deadline in seconds (0 = none)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index a project tree",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Re-parse every file"},
				},
				Action: cmdIndex,
			},
			{
				Name:      "search",
				Usage:     "Search indexed symbols",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "k", Value: 10, Usage: "Maximum results"},
					&cli.Float64Flag{Name: "threshold", Usage: "Minimum overall score"},
					&cli.BoolFlag{Name: "json", Usage: "Emit JSON instead of text"},
				},
				Action: cmdSearch,
			},
			{
				Name:      "analyze",
				Usage:     "Answer a natural-language question with expanded context",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "budget", Value: 4000, Usage: "Context token budget"},
					&cli.BoolFlag{Name: "json", Usage: "Emit JSON instead of text"},
				},
				Action: cmdAnalyze,
			},
			{
				Name:   "diagnostics",
				Usage:  "Report memory, cache and graph state",
				Action: cmdDiagnostics,
			},
			{
				Name:  "serve",
				Usage: "Serve the tool protocol on stdin/stdout",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "metrics-addr", Usage: "Optional address for Prometheus /metrics"},
				},
				Action: cmdServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "leindex:", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if errors.Is(err, lcierr.ErrCancelled) || errors.Is(err, lcierr.ErrTimeout) {
		return exitCancel
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	return exitRuntime
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func projectRoot(c *cli.Context, arg string) (string, error) {
	if root := c.String("root"); root != "" {
		return root, nil
	}
	if arg != "" {
		return arg, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return cwd, nil
}

func openEngine(c *cli.Context, root string) (*engine.Engine, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg, engine.Options{})
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if secs := c.Int("timeout"); secs > 0 {
		tctx, tcancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		return tctx, func() { tcancel(); cancel() }
	}
	return ctx, cancel
}

func cmdIndex(c *cli.Context) error {
	root, err := projectRoot(c, c.Args().First())
	if err != nil {
		return err
	}
	eng, err := openEngine(c, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := commandContext(c)
	defer cancel()

	stats, err := eng.Index(ctx, c.Bool("force"))
	if err != nil {
		return err
	}
	fmt.Printf("files: %d  parsed: %d  skipped: %d  failed: %d\n",
		stats.FilesParsed, stats.SuccessfulParses-stats.SkippedUnchanged,
		stats.SkippedUnchanged, stats.FailedParses)
	fmt.Printf("symbols: %d  nodes: %d  edges: %d  time: %dms\n",
		stats.TotalSignatures, stats.PDGNodes, stats.PDGEdges, stats.IndexingTimeMs)
	return nil
}

func cmdSearch(c *cli.Context) error {
	query := c.Args().First()
	if query == "" {
		return &usageError{msg: "search requires a query argument"}
	}
	root, err := projectRoot(c, "")
	if err != nil {
		return err
	}
	eng, err := openEngine(c, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := commandContext(c)
	defer cancel()

	results, err := eng.Search(ctx, search.Query{
		Text:      query,
		TopK:      c.Int("k"),
		Threshold: c.Float64("threshold"),
	})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	for _, r := range results {
		fmt.Printf("%2d. %-40s %s  (%.3f)\n", r.Rank, r.Symbol, r.FilePath, r.Score.Overall)
	}
	if len(results) == 0 {
		fmt.Println("no results")
	}
	return nil
}

func cmdAnalyze(c *cli.Context) error {
	question := c.Args().First()
	if question == "" {
		return &usageError{msg: "analyze requires a question argument"}
	}
	root, err := projectRoot(c, "")
	if err != nil {
		return err
	}
	eng, err := openEngine(c, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := commandContext(c)
	defer cancel()

	out, err := eng.Analyze(ctx, question, c.Int("budget"))
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(out)
	}
	for _, r := range out.Results {
		fmt.Printf("%2d. %-40s %s  (%.3f)\n", r.Rank, r.Symbol, r.FilePath, r.Score.Overall)
	}
	if out.ContextText != "" {
		fmt.Printf("\n--- context (%d tokens, %dms) ---\n%s", out.TokensUsed, out.ProcessingMs, out.ContextText)
	}
	return nil
}

func cmdDiagnostics(c *cli.Context) error {
	root, err := projectRoot(c, "")
	if err != nil {
		return err
	}
	eng, err := openEngine(c, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	return json.NewEncoder(os.Stdout).Encode(eng.Diagnostics())
}

func cmdServe(c *cli.Context) error {
	root, err := projectRoot(c, c.Args().First())
	if err != nil {
		return err
	}
	eng, err := openEngine(c, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", eng.Gauges().Handler())
		go func() {
			_ = http.ListenAndServe(addr, mux)
		}()
	}

	ctx, cancel := commandContext(c)
	defer cancel()
	return mcpserver.NewServer(eng).Run(ctx)
}
