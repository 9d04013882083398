// Command enginectl wires configuration into the engine and supervises
// its three threads, in the style of the teacher's cobra+viper daemon
// entrypoints.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sentovic/jack1/engine/buffer"
	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/clock"
	"github.com/sentovic/jack1/engine/cycle"
	"github.com/sentovic/jack1/engine/driver"
	"github.com/sentovic/jack1/engine/event"
	"github.com/sentovic/jack1/engine/fifo"
	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/engine/request"
	"github.com/sentovic/jack1/engine/runner"
	"github.com/sentovic/jack1/engine/server"
	"github.com/sentovic/jack1/engine/watchdog"
	"github.com/sentovic/jack1/engineconf"
	"github.com/sentovic/jack1/errs"
	"github.com/sentovic/jack1/logger"
	"github.com/sentovic/jack1/metrics"
)

func main() {
	v := viper.New()
	cfg := engineconf.Default()

	root := &cobra.Command{
		Use:   "enginectl",
		Short: "run the audio engine coordination core",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := engineconf.Load(v)
			if err != nil {
				return err
			}
			cfg = c
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.Bool("realtime", cfg.Realtime, "run the cycle thread at realtime priority")
	flags.Int("rtpriority", cfg.RTPriority, "realtime scheduling priority [1,98]")
	flags.Bool("verbose", cfg.Verbose, "enable debug logging")
	flags.Int("client-timeout-msecs", cfg.ClientTimeoutMs, "non-realtime client response timeout")
	flags.Int("port-max", cfg.PortMax, "maximum number of ports")
	flags.String("server-dir", cfg.ServerDir, "directory for listening sockets and FIFOs")
	flags.Int("buffer-size", cfg.BufferSize, "period size in frames")
	flags.Int("sample-rate", cfg.SampleRate, "sample rate in Hz")
	flags.Int("rolling-interval-ms", cfg.RollingIntervalMs, "CPU-load rolling average window")

	_ = v.BindPFlag("realtime", flags.Lookup("realtime"))
	_ = v.BindPFlag("rtpriority", flags.Lookup("rtpriority"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = v.BindPFlag("client_timeout_msecs", flags.Lookup("client-timeout-msecs"))
	_ = v.BindPFlag("port_max", flags.Lookup("port-max"))
	_ = v.BindPFlag("server_dir", flags.Lookup("server-dir"))
	_ = v.BindPFlag("buffer_size", flags.Lookup("buffer-size"))
	_ = v.BindPFlag("sample_rate", flags.Lookup("sample-rate"))
	_ = v.BindPFlag("rolling_interval_ms", flags.Lookup("rolling-interval-ms"))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cleanStaleState deletes every jack-*/jack_* file in serverDir, matching
// spec §6: "the core deletes all files matching jack-* and jack_* in
// server_dir on startup."
func cleanStaleState(serverDir string) error {
	for _, pattern := range []string{"jack-*", "jack_*"} {
		matches, err := filepath.Glob(filepath.Join(serverDir, pattern))
		if err != nil {
			return errs.IOFailure.Errorf(err, "glob %s", pattern)
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				return errs.IOFailure.Errorf(err, "remove stale file %s", m)
			}
		}
	}
	return nil
}

func run(cfg engineconf.Config) error {
	lvl := logger.InfoLevel
	if cfg.Verbose {
		lvl = logger.DebugLevel
	}
	log := logger.New(lvl, os.Stderr)

	if err := os.MkdirAll(cfg.ServerDir, 0755); err != nil {
		return errs.IOFailure.Errorf(err, "create server dir %s", cfg.ServerDir)
	}
	if err := cleanStaleState(cfg.ServerDir); err != nil {
		return err
	}

	m := metrics.New()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		return err
	}

	reg := client.NewRegistry()
	ports := port.NewTable(cfg.PortMax)
	ev := event.NewDispatcher(reg)
	clk := clock.New(driver.NowUsecs())

	periodUsecs := int64(cfg.BufferSize) * 1_000_000 / int64(cfg.SampleRate)
	drv := driver.NewNullDriver(uint32(cfg.BufferSize), periodUsecs)
	sig := cycle.NewFIFOSignaler()

	exec := cycle.NewExecutor(reg, ports, ev, clk, drv, sig, m, log)
	exec.Realtime = cfg.Realtime
	exec.ClientTimeoutMs = cfg.ClientTimeoutMs
	exec.SpareUsecs = periodUsecs
	exec.ServerDir = cfg.ServerDir
	exec.PID = os.Getpid()

	driverClient, err := reg.Add("driver", client.KindDriver, os.Getpid())
	if err != nil {
		return err
	}
	if err := reg.Activate(driverClient.ID); err != nil {
		return err
	}
	exec.Resort()

	audioType := port.Type{ID: 0, Name: "audio", ScaleFactor: 1, SampleBytes: 4}
	ports.RegisterType(audioType)
	pool, err := buffer.NewPool(buffer.MmapProvisioner{}, audioType, cfg.PortMax, cfg.BufferSize, true)
	if err != nil {
		return err
	}

	planes := request.NewPlanes(ports, reg, ev, exec, cfg.BufferSize, cfg.SampleRate)
	planes.SetPool(audioType.ID, pool)
	setup := &clientSetup{
		clients:    reg,
		planes:     planes,
		events:     ev,
		pool:       pool,
		realtime:   cfg.Realtime,
		rtPriority: cfg.RTPriority,
		fifoPrefix: fifo.Path(cfg.ServerDir, exec.PID, 0),
	}
	srv, err := server.New(cfg.ServerDir, setup, setup, setup, log)
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	wd := watchdog.New(watchdog.UnixKiller{}, log, m, os.Getpid())
	exec.OnLive(wd.MarkLive)

	r := runner.New(log)
	r.Register("cycle", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			nframes, status, delayed := drv.Wait()
			if status < 0 {
				return errs.IOFailure.Errorf(nil, "driver wait fatal status %d", status)
			}
			if nframes == 0 {
				ev.Broadcast(event.Event{Type: event.XRun})
				continue
			}
			if err := exec.RunCycle(nframes, delayed); err != nil {
				return err
			}
		}
	})
	r.Register("server", func(ctx context.Context) error {
		srv.Serve(ctx)
		<-ctx.Done()
		return srv.Close()
	})
	r.Register("watchdog", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { wd.Run(); close(done) }()
		select {
		case <-ctx.Done():
			wd.Stop()
			return ctx.Err()
		case <-done:
			return errs.IOFailure.Errorf(nil, "watchdog fired")
		}
	})

	log.Info("engine starting", logger.Fields{"server_dir": cfg.ServerDir, "port_max": cfg.PortMax})
	return r.Run(context.Background())
}
