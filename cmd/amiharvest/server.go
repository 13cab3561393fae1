package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/amiharvest/internal/config"
	"github.com/tinytelemetry/amiharvest/internal/dbpool"
	"github.com/tinytelemetry/amiharvest/internal/httpserver"
	"github.com/tinytelemetry/amiharvest/internal/rules"
	"github.com/tinytelemetry/amiharvest/internal/session"
	"github.com/tinytelemetry/amiharvest/internal/sink"
)

// runServer wires the pipeline and blocks until shutdown or a fatal sink
// failure.
func runServer(cfg config.Config) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	endpoints := cfg.Endpoints()
	names := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		names = append(names, ep.Name)
	}

	files := sink.NewFileManager(cfg.Basic.TargetDirectory, cfg.Basic.DirectoryPerServer, names)
	if err := files.EnsureDirs(); err != nil {
		return err
	}
	defer files.Close()

	pools, err := dbpool.Open(cfg.Targets())
	if err != nil {
		return err
	}
	defer pools.Close()

	var applier sink.RuleApplier
	if mappingRules := cfg.MappingRules(); len(mappingRules) > 0 {
		dbs := make(map[string]rules.Execer, len(pools.ByID()))
		for id, db := range pools.ByID() {
			dbs[id] = db
		}
		applier = rules.NewEngine(mappingRules, dbs)
	}

	aggregator := sink.NewAggregator(files, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	policy := session.BackoffPolicy{
		Min: cfg.Runtime.ReconnectMinBackoff,
		Max: cfg.Runtime.ReconnectMaxBackoff,
	}
	supervisors := make([]*session.Supervisor, 0, len(endpoints))
	sources := make([]EventSource, 0, len(endpoints))
	for _, ep := range endpoints {
		sup := session.NewSupervisor(ep, policy, cfg.Runtime.SessionBuffer)
		supervisors = append(supervisors, sup)
		sources = append(sources, sup)
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.Runtime.BusBuffer)
	mux.Start()
	defer mux.Stop()

	stats := &pipelineStats{supervisors: supervisors, aggregator: aggregator}
	if cfg.Runtime.APIEnabled {
		api := httpserver.NewServer(cfg.Runtime.APIAddr, stats)
		if err := api.Start(); err != nil {
			return fmt.Errorf("start status API: %w", err)
		}
		defer api.Stop()
	}

	printStartupBanner(cfg, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)

	for _, sup := range supervisors {
		sup := sup
		g.Go(func() error {
			sup.Run(gctx)
			return nil
		})
	}

	// The pipeline is over once the aggregator stops, whether from a fatal
	// sink failure or because every session terminated for good.
	g.Go(func() error {
		defer cancel()
		return aggregator.Run(gctx, mux.Events())
	})

	return g.Wait()
}

// pipelineStats bridges the running pipeline to the status API.
type pipelineStats struct {
	supervisors []*session.Supervisor
	aggregator  *sink.Aggregator
}

func (p *pipelineStats) SourceStatuses() []session.Status {
	out := make([]session.Status, 0, len(p.supervisors))
	for _, sup := range p.supervisors {
		out = append(out, sup.Status())
	}
	return out
}

func (p *pipelineStats) EventsWritten() int64 {
	return p.aggregator.EventsWritten()
}

func printStartupBanner(cfg config.Config, endpoints int) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔╦╗╦  ╦ ╦╔═╗╦═╗╦  ╦╔═╗╔═╗╔╦╗
    ╠═╣║║║║  ╠═╣╠═╣╠╦╝╚╗╔╝║╣ ╚═╗ ║
    ╩ ╩╩ ╩╩  ╩ ╩╩ ╩╩╚═ ╚╝ ╚═╝╚═╝ ╩`)

	var lines []string
	lines = append(lines, logo)
	lines = append(lines, "    "+dim.Render("v"+version))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Upstreams"))
	for _, s := range cfg.Servers {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, s.Name, cyan.Render(fmt.Sprintf("%s:%d", s.Host, s.Port))))
	}
	if endpoints == 0 {
		lines = append(lines, fmt.Sprintf("    %s  %s", dot, dim.Render("no servers configured")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Sinks"))
	layout := "shared file"
	if cfg.Basic.DirectoryPerServer {
		layout = "directory per server"
	}
	lines = append(lines, fmt.Sprintf("    %s  Event Logs     %s %s", check, cyan.Render(cfg.Basic.TargetDirectory), dim.Render("("+layout+")")))
	if len(cfg.Rules) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Databases      %s", check, dim.Render(fmt.Sprintf("%d targets, %d rules", len(cfg.Databases), len(cfg.Rules)))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Databases      %s", dot, dim.Render("no mapping rules")))
	}
	if cfg.Runtime.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Status API     %s", check, cyan.Render(cfg.Runtime.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Status API     %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press Ctrl+C to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}
