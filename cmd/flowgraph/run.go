package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/pipelined/flowgraph/config"
	"github.com/pipelined/flowgraph/log"
	"github.com/pipelined/flowgraph/metric"
	"github.com/pipelined/flowgraph/run"
)

type runCommand struct {
	graph    string
	config   string
	metrics  string
	duration time.Duration
	options
}

func (cmd *runCommand) Name() string {
	return "run"
}

func (cmd *runCommand) Help() string {
	return "Run a demo graph and print block counters"
}

func (cmd *runCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.graph, "graph", "", "name of the demo graph (required)")
	fs.StringVar(&cmd.config, "config", "", "path to yaml config")
	fs.StringVar(&cmd.metrics, "metrics", "", "address to serve prometheus metrics on")
	fs.DurationVar(&cmd.duration, "duration", 0, "stop the graph after duration, zero runs until done")
	fs.IntVar(&cmd.items, "items", 1<<20, "number of items to stream")
	fs.Float64Var(&cmd.gain, "gain", 0.5, "gain of multiplying blocks")
	fs.StringVar(&cmd.in, "in", "", "input wav file")
	fs.StringVar(&cmd.out, "out", "", "output wav file")
}

func (cmd *runCommand) Run(stdout io.Writer) error {
	d, ok := demos[cmd.graph]
	if !ok {
		return fmt.Errorf("unknown graph %q, see list command", cmd.graph)
	}
	cfg, err := cmd.loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(cfg.Level())
	cmd.logger = logger

	g, err := d.build(cmd.options)
	if err != nil {
		return err
	}
	registry := prometheus.NewRegistry()
	metrics, err := metric.New(registry)
	if err != nil {
		return err
	}
	r, err := run.New(g,
		run.WithConfig(cfg),
		run.WithLogger(logger.WithField("graph", cmd.graph)),
		run.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	if cmd.metrics != "" {
		srv := &http.Server{
			Addr:    cmd.metrics,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	if err := r.Start(ctx); err != nil {
		return err
	}
	if cmd.duration > 0 {
		timer := time.AfterFunc(cmd.duration, r.Stop)
		defer timer.Stop()
	}
	err = r.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	fmt.Fprintf(stdout, "Run %s finished in %v\n", r.ID(), time.Since(start).Round(time.Millisecond))
	return multierr.Append(err, printCounters(stdout, registry))
}

func (cmd *runCommand) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if cmd.config != "" {
		var err error
		if cfg, err = config.Load(cmd.config); err != nil {
			return config.Config{}, err
		}
	}
	return config.FromEnv(cfg)
}

type counters struct {
	calls    float64
	consumed float64
	produced float64
}

func printCounters(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	byBlock := make(map[string]*counters)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var block string
			for _, l := range m.GetLabel() {
				if l.GetName() == "block" {
					block = l.GetValue()
				}
			}
			c, ok := byBlock[block]
			if !ok {
				c = &counters{}
				byBlock[block] = c
			}
			v := m.GetCounter().GetValue()
			switch f.GetName() {
			case "flowgraph_work_calls_total":
				c.calls += v
			case "flowgraph_items_consumed_total":
				c.consumed += v
			case "flowgraph_items_produced_total":
				c.produced += v
			}
		}
	}

	blocks := make([]string, 0, len(byBlock))
	for b := range byBlock {
		blocks = append(blocks, b)
	}
	sort.Strings(blocks)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tCALLS\tCONSUMED\tPRODUCED")
	for _, b := range blocks {
		c := byBlock[b]
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.0f\n", b, c.calls, c.consumed, c.produced)
	}
	return tw.Flush()
}
