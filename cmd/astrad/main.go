// Command astrad runs a streaming pipeline described by a JSON
// document: it loads configuration from the environment, registers the
// built-in streaming modules, wires the module graph through the
// jsonhost and drives it with the main loop until shutdown or reload.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astrasm/astra-go/internal/config"
	"github.com/astrasm/astra-go/internal/corelog"
	"github.com/astrasm/astra-go/internal/diagnostics"
	"github.com/astrasm/astra-go/internal/event"
	"github.com/astrasm/astra-go/internal/health"
	"github.com/astrasm/astra-go/internal/jobqueue"
	"github.com/astrasm/astra-go/internal/mainloop"
	"github.com/astrasm/astra-go/internal/metrics"
	"github.com/astrasm/astra-go/internal/modules"
	"github.com/astrasm/astra-go/internal/scripthost"
	"github.com/astrasm/astra-go/internal/scripthost/jsonhost"
	"github.com/astrasm/astra-go/internal/timer"
	"github.com/astrasm/astra-go/internal/wake"
	"github.com/astrasm/astra-go/internal/worker"
)

const logTag = "main"

// statSampleInterval is how often sync-buffer occupancy is sampled
// into metrics gauges and the diagnostics store.
const statSampleInterval = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	pipelinePath := flag.String("c", "", "pipeline document path (overrides ASTRA_PIPELINE)")
	envFile := flag.String("e", ".env", "environment file to load before reading ASTRA_* variables")
	logFile := flag.String("log", "", "log file path (default stderr)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "astrad: load %s: %v\n", *envFile, err)
		return 1
	}
	cfg := config.Load()
	if *pipelinePath != "" {
		cfg.PipelinePath = *pipelinePath
	}

	corelog.SetDebug(cfg.Debug || *debug)
	if *logFile != "" {
		if err := corelog.SetFile(*logFile); err != nil {
			fmt.Fprintf(os.Stderr, "astrad: open log %s: %v\n", *logFile, err)
			return 1
		}
	}

	modules.Defaults.SyncOpts = cfg.SyncBufferOpts
	modules.Defaults.T2MIPLP = uint16(cfg.T2MIPLP)

	mreg := metrics.New()
	hreg := health.NewRegistry()
	serveHTTP(cfg.ListenMetrics, "/metrics", mreg.Handler())
	serveHTTP(cfg.ListenHealth, "/healthz", hreg.Handler())

	var diag *diagnostics.Store
	if cfg.DiagnosticsPath != "" {
		var err error
		diag, err = diagnostics.Open(cfg.DiagnosticsPath, cfg.DiagnosticsRetain)
		if err != nil {
			corelog.Errorf(logTag, "diagnostics disabled: %v", err)
		} else {
			defer diag.Close()
		}
	}

	for {
		outcome, err := runInstance(cfg, mreg, hreg, diag)
		if err != nil {
			corelog.Errorf(logTag, "%v", err)
			if diag != nil {
				diag.RecordEvent("error", "main", err.Error())
			}
			return 1
		}
		if outcome == mainloop.Restart {
			corelog.Infof(logTag, "restarting")
			continue
		}
		corelog.Infof(logTag, "shutdown complete")
		return 0
	}
}

// serveHTTP starts a background listener for one handler, or does
// nothing when addr is empty.
func serveHTTP(addr, pattern string, h http.Handler) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(pattern, h)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			corelog.Errorf(logTag, "listen %s: %v", addr, err)
		}
	}()
}

// runInstance wires one engine instance (event loop, timers, job
// queue, wake pipe, pipeline) and runs it until Stop or Restart.
func runInstance(cfg *config.Config, mreg *metrics.Registry, hreg *health.Registry, diag *diagnostics.Store) (mainloop.Outcome, error) {
	ev := event.NewLoop()
	tw := timer.New(nil)
	jq := jobqueue.New()
	sup := worker.New(jq)

	wk := &wake.Pipe{}
	if err := wk.Open(); err != nil {
		return 0, fmt.Errorf("wake pipe: %w", err)
	}
	defer wk.Close()
	wakeHandle := ev.Add(wk.ReadFD())
	wakeHandle.OnRead(wk.Drain)

	pipeline, err := jsonhost.Load(cfg.PipelinePath, scripthost.Default)
	if err != nil {
		return 0, err
	}
	defer pipeline.Destroy()

	loop := mainloop.New(ev, tw, jq, wk, pipeline.Host)

	for id, inst := range pipeline.Instances {
		if s, ok := inst.(modules.Scheduled); ok {
			s.Schedule(tw)
		}
		if sb, ok := inst.(*modules.SyncBufferModule); ok {
			scheduleStatSample(tw, id, sb, mreg, diag)
		}
		if p, ok := inst.(modules.Pumped); ok {
			p.Pump(jq, wk, sup)
		}
	}

	hreg.Register("pipeline", func(context.Context) error { return nil })

	sigc := make(chan os.Signal, 4)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		for sig := range sigc {
			switch sig {
			case syscall.SIGHUP:
				loop.RequestSIGHUP()
			default:
				loop.RequestShutdown()
			}
			wk.Wake()
		}
	}()

	corelog.Infof(logTag, "pipeline %s up, %d modules", cfg.PipelinePath, len(pipeline.Instances))
	outcome := loop.Run()

	hreg.Unregister("pipeline")
	sup.Shutdown()
	return outcome, nil
}

// scheduleStatSample periodically copies one sync buffer's occupancy
// into the metrics gauges and, when enabled, the diagnostics store.
func scheduleStatSample(tw *timer.Wheel, id string, sb *modules.SyncBufferModule, mreg *metrics.Registry, diag *diagnostics.Store) {
	tw.Schedule(statSampleInterval, func() {
		stat := sb.Query()
		mreg.SyncBufferFill.WithLabelValues(id).Set(float64(stat.Filled))
		mreg.SyncBufferState.WithLabelValues(id).Set(float64(stat.State))
		if diag != nil {
			diag.RecordSyncBufferStat(id, stat.State.String(), stat.Filled, stat.Want)
		}
	})
}

