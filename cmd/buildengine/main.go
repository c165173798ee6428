// Command buildengine is the CLI entry point (D10): it loads a declarative
// job graph and a policy document, then drives the scheduler and status
// observer to completion, analogous to catkin_tools's "catkin build".
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v2"

	"github.com/jbohren-forks/catkin-tools/engine/event"
	"github.com/jbohren-forks/catkin-tools/engine/graph"
	"github.com/jbohren-forks/catkin-tools/engine/httpapi"
	"github.com/jbohren-forks/catkin-tools/engine/jobserver"
	enginemetrics "github.com/jbohren-forks/catkin-tools/engine/metrics"
	"github.com/jbohren-forks/catkin-tools/engine/runtime"
	"github.com/jbohren-forks/catkin-tools/engine/scheduler"
	"github.com/jbohren-forks/catkin-tools/engine/status"
	"github.com/jbohren-forks/catkin-tools/go/config"
	"github.com/jbohren-forks/catkin-tools/go/skerr"
	"github.com/jbohren-forks/catkin-tools/go/sklog"
)

func main() {
	app := &cli.App{
		Name:  "buildengine",
		Usage: "a parallel, dependency-aware job execution engine",
		Commands: []*cli.Command{
			runCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		sklog.Errorf("%v", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "execute a job graph",
		ArgsUsage: "<graph.json5>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to a JSON5 EngineConfig document",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "label printed on every status line (e.g. the workspace name)",
				Value: "build",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "port for the /metrics and /status HTTP endpoints (0 disables it)",
				Value: 0,
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	graphPath := c.Args().First()
	if graphPath == "" {
		return skerr.Fmt("buildengine run: a graph.json5 path is required")
	}

	cfg := config.EngineConfig{
		MaxJobs: goruntime.NumCPU(),
		Display: config.DefaultDisplay(),
	}
	if path := c.String("config"); path != "" {
		if err := config.ParseFile(path, &cfg); err != nil {
			return err
		}
	}

	doc, err := graph.Load(graphPath)
	if err != nil {
		return err
	}
	jobs, err := doc.ToJobs()
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	sklog.Infof("run %s: starting %d jobs from %s", runID, len(jobs), graphPath)

	js, err := jobserver.New(cfg.MaxJobs)
	if err != nil {
		return err
	}
	defer js.Close()

	// Predicates close over js itself (e.g. to call js.RunningJobs()), so
	// they can only be built once js exists.
	var predicates []jobserver.Predicate
	if cfg.MaxLoad > 0 {
		predicates = append(predicates, jobserver.LoadAveragePredicate(js, cfg.MaxLoad))
	}
	if cfg.MaxMemPercent > 0 {
		predicates = append(predicates, jobserver.MemoryPercentPredicate(js, cfg.MaxMemPercent))
	}
	js.AddPredicates(predicates...)

	queue := event.NewQueue(256)
	rt := runtime.New(queue, int64(cfg.MaxJobs), runtime.WithJobServer(js))

	reg := prometheus.NewRegistry()
	m := enginemetrics.New(reg, runID)

	sched, err := scheduler.New(jobs, js, queue, rt, cfg.ContinueOnFailure, cfg.ContinueWithoutDeps, m)
	if err != nil {
		return err
	}

	if port := c.Int("http-port"); port > 0 {
		router := httpapi.NewRouter(reg, sched)
		addr := fmt.Sprintf(":%d", port)
		go func() {
			if err := http.ListenAndServe(addr, router); err != nil {
				sklog.Errorf("run %s: http server on %s exited: %v", runID, addr, err)
			}
		}()
		sklog.Infof("run %s: serving /metrics and /status on %s", runID, addr)
	}

	observer := status.New(queue, os.Stdout, c.String("label"), len(jobs), cfg.Display,
		status.WithRunningJobs(cfg.MaxJobs, func() int {
			n, err := js.RunningJobs()
			if err != nil {
				return 0
			}
			return n
		}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	type schedResult struct {
		succeeded bool
		err       error
	}
	schedDone := make(chan schedResult, 1)
	go func() {
		succeeded, err := sched.Run(ctx)
		schedDone <- schedResult{succeeded: succeeded, err: err}
	}()

	summary := observer.Run(ctx)
	res := <-schedDone
	if res.err != nil {
		return res.err
	}

	sklog.Infof("run %s: finished, all_succeeded=%v", runID, summary.AllSucceeded())
	if !summary.AllSucceeded() {
		return cli.Exit("", 1)
	}
	return nil
}
