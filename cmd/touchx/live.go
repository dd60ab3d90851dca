package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/evdev"
	"github.com/verte-zerg/touchx/internal/loop"
	"github.com/verte-zerg/touchx/internal/pad"
	"github.com/verte-zerg/touchx/internal/remote"
	"github.com/verte-zerg/touchx/internal/store"
)

func newPadCmd() *cobra.Command {
	var name string
	var noRecord bool
	cmd := &cobra.Command{
		Use:   "pad",
		Short: "Drive the rewriter with the terminal mouse",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPadCmd(name, !noRecord)
		},
	}
	cmd.Flags().StringVar(&name, "name", "pad", "session name")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not save the session")
	return cmd
}

func runPadCmd(name string, record bool) error {
	cfg, err := exploreConfig()
	if err != nil {
		return err
	}
	// Log lines would tear the alternate screen; the pad shows its own log.
	opts := pad.Options{}
	var st *store.Store
	var rec *store.Recorder
	if record {
		st, err = openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		rec = store.NewRecorder("pad", name, cfg)
		opts.Sink = rec
		opts.Observer = rec.Observe
	}

	m, err := pad.NewModel(cfg, opts)
	if err != nil {
		return err
	}
	if err := pad.Run(m); err != nil {
		return err
	}
	if rec != nil {
		saveRecording(st, rec)
	}
	return nil
}

func newEvdevCmd() *cobra.Command {
	var (
		device         string
		grab           bool
		width, height  float64
		record, silent bool
	)
	cmd := &cobra.Command{
		Use:   "evdev",
		Short: "Rewrite a Linux multitouch device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyStringConfig(cmd, "device", &device, fileCfg.Evdev.Device)
			applyBoolConfig(cmd, "grab", &grab, fileCfg.Evdev.Grab)
			applyFloatConfig(cmd, "width", &width, fileCfg.Evdev.Width)
			applyFloatConfig(cmd, "height", &height, fileCfg.Evdev.Height)
			return runEvdevCmd(cmd, evdevOptions{
				device: device, grab: grab, width: width, height: height,
				record: record, silent: silent,
			})
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "input device (default: first touch device)")
	cmd.Flags().BoolVar(&grab, "grab", true, "take exclusive access to the device")
	cmd.Flags().Float64Var(&width, "width", 0, "surface width (0 keeps device units)")
	cmd.Flags().Float64Var(&height, "height", 0, "surface height (0 keeps device units)")
	cmd.Flags().BoolVar(&record, "record", false, "save the session")
	cmd.Flags().BoolVar(&silent, "silent", false, "do not print outputs")
	return cmd
}

type evdevOptions struct {
	device        string
	grab          bool
	width, height float64
	record        bool
	silent        bool
}

func runEvdevCmd(cmd *cobra.Command, opts evdevOptions) error {
	cfg, err := exploreConfig()
	if err != nil {
		return err
	}
	if opts.width < 0 || opts.height < 0 {
		return fmt.Errorf("--width and --height must be >= 0")
	}
	path := opts.device
	if path == "" {
		path, err = evdev.FindTouchDevice()
		if err != nil {
			return err
		}
	}
	dev, err := evdev.Open(path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Close(); cerr != nil {
			logErrf("failed to close device: %v\n", cerr)
		}
	}()
	if opts.grab {
		if err := dev.Grab(); err != nil {
			return err
		}
	}
	surface := dev.Surface(evdev.Surface{Width: opts.width, Height: opts.height})
	logger.WithFields(logrus.Fields{
		"device": dev.Path,
		"name":   dev.Name,
		"x":      fmt.Sprintf("%d..%d", surface.X.Min, surface.X.Max),
		"y":      fmt.Sprintf("%d..%d", surface.Y.Min, surface.Y.Max),
	}).Info("reading touch device")

	var sinks []loop.Sink
	if !opts.silent {
		sinks = append(sinks, printSink(cmd))
	}
	loopOpts := loop.Options{Logger: logger}
	var st *store.Store
	var rec *store.Recorder
	if opts.record {
		st, err = openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		rec = store.NewRecorder("evdev", dev.Name, cfg)
		sinks = append(sinks, rec)
		loopOpts.Observer = rec.Observe
	}
	runner, err := loop.New(cfg, loop.Tee(sinks...), loopOpts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	in := make(chan event.Event, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dev.Run(gctx, surface, in)
	})
	g.Go(func() error {
		if err := runner.Run(gctx, in); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	err = g.Wait()
	if rec != nil {
		saveRecording(st, rec)
	}
	return err
}

func printSink(cmd *cobra.Command) loop.Sink {
	w := cmd.OutOrStdout()
	return loop.SinkFunc(func(out loop.Output) {
		if _, err := fmt.Fprintln(w, out.String()); err != nil {
			// Best-effort output; the rewriter keeps running.
			_ = err
		}
	})
}

func newServeCmd() *cobra.Command {
	var (
		addr      string
		advertise bool
		record    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rewriter to touch surfaces over WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyStringConfig(cmd, "addr", &addr, fileCfg.Serve.Addr)
			applyBoolConfig(cmd, "advertise", &advertise, fileCfg.Serve.Advertise)
			return runServeCmd(addr, advertise, record)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultServeAddr, "listen address")
	cmd.Flags().BoolVar(&advertise, "advertise", false, "announce the server over mDNS")
	cmd.Flags().BoolVar(&record, "record", true, "save finished sessions")
	return cmd
}

func runServeCmd(addr string, advertise, record bool) error {
	cfg, err := exploreConfig()
	if err != nil {
		return err
	}
	opts := remote.Options{Config: cfg, Logger: logger}
	if record {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		opts.Record = func(rec *store.Recorder) { saveRecording(st, rec) }
	}
	srv, err := remote.NewServer(opts)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if advertise {
		tcp, ok := ln.Addr().(*net.TCPAddr)
		if !ok {
			_ = ln.Close()
			return fmt.Errorf("cannot advertise %s", ln.Addr())
		}
		announcer, err := remote.Advertise(tcp.Port)
		if err != nil {
			_ = ln.Close()
			return err
		}
		defer func() {
			if cerr := announcer.Shutdown(); cerr != nil {
				logErrf("failed to stop mDNS: %v\n", cerr)
			}
		}()
	}
	logErrf("listening on ws://%s%s\n", ln.Addr(), remote.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, ln)
}

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find touchx servers on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be > 0")
			}
			urls, err := remote.Discover(timeout)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				logErrln("no touchx servers found")
				return nil
			}
			for _, url := range urls {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), url); err != nil {
					return fmt.Errorf("failed to write output: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for answers")
	return cmd
}
