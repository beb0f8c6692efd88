package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/gpio"
	"github.com/sweeney/quickshifter/internal/logic"
	"github.com/sweeney/quickshifter/internal/mqtt"
	"github.com/sweeney/quickshifter/internal/status"
	"github.com/sweeney/quickshifter/internal/web"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	Poll        time.Duration
	Heartbeat   time.Duration
	Broker      string
	HTTPAddr    string
	PinShift    int
	PinRPMCoil  int
	PinRPMInj   int
	PinIGN      int
	PinINJ      int
	LogCapacity int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the quick-shifter control loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(root, opts)
		},
	}

	f := cmd.Flags()
	f.DurationVar(&opts.Poll, "poll", time.Millisecond, "control loop interval")
	f.DurationVar(&opts.Heartbeat, "heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	f.StringVar(&opts.Broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	f.StringVar(&opts.HTTPAddr, "http", ":80", "HTTP address (empty to disable)")
	f.IntVar(&opts.PinShift, "pin-shift", gpio.PinShift, "BCM pin number for the shift sensor")
	f.IntVar(&opts.PinRPMCoil, "pin-rpm-coil", gpio.PinRPMCoil, "BCM pin number for the coil tach input")
	f.IntVar(&opts.PinRPMInj, "pin-rpm-inj", gpio.PinRPMInj, "BCM pin number for the injector tach input")
	f.IntVar(&opts.PinIGN, "pin-ign", gpio.PinCutIGN, "BCM pin number for the ignition kill")
	f.IntVar(&opts.PinINJ, "pin-inj", gpio.PinCutINJ, "BCM pin number for the injection kill")
	f.IntVar(&opts.LogCapacity, "log-capacity", status.DefaultLogCapacity, "cut records kept in memory")
	return cmd
}

func run(root *rootOptions, opts *runOptions) error {
	logger := root.logger

	store, err := openStore(root.ConfigPath)
	if err != nil {
		return err
	}
	cfg := store.Get()

	// Outputs first so both kill lines are driven inactive before anything
	// else can fail.
	lines, err := gpio.NewRealLines(opts.PinIGN, opts.PinINJ)
	if err != nil {
		return fmt.Errorf("init outputs: %w", err)
	}
	defer lines.Close()

	input, err := gpio.NewRealInput(opts.PinShift)
	if err != nil {
		return fmt.Errorf("init shift input: %w", err)
	}
	defer input.Close()

	meter := gpio.NewMeter(time.Now, gpio.DefaultStale)
	tach := &tachInput{
		coil:  opts.PinRPMCoil,
		inj:   opts.PinRPMInj,
		meter: meter,
		log:   logger,
		open: func(pin int) (io.Closer, error) {
			in, err := gpio.NewRealPulseInput(pin, meter, time.Now)
			if err != nil {
				return nil, err
			}
			return in, nil
		},
	}
	if err := tach.apply(cfg.RPMSource); err != nil {
		return fmt.Errorf("init rpm input: %w", err)
	}
	defer tach.Close()

	session := mqtt.NewSessionID()
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = nopPublisher{}
	if opts.Broker != "" {
		publisher = mqtt.NewRealPublisher(opts.Broker, session, logger)
	}
	defer publisher.Close()

	out := gpio.NewOutput(lines, time.Now)
	trigger := gpio.NewTrigger(input)
	cutLog := status.NewCutLog(opts.LogCapacity)
	sink := &cutSink{log: cutLog, pub: publisher, logger: logger}

	guard := logic.NewGuard(store, trigger, out)
	core := &logic.Core{
		Guard:      guard,
		Controller: logic.NewController(store, meter, trigger, guard.Gate(out), sink),
		Output:     out,
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:     opts.Poll.Milliseconds(),
		Broker:     opts.Broker,
		HTTPPort:   opts.HTTPAddr,
		ConfigPath: root.ConfigPath,
		Session:    session,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	exec := newLoopExec()

	if opts.HTTPAddr != "" {
		srv := web.New(opts.HTTPAddr, web.Deps{
			Tracker: tracker,
			Log:     cutLog,
			Config:  store,
			Guard:   guard,
			Output:  guard.Gate(out),
			RPM:     meter,
			Exec:    exec,
			Logger:  logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http server listening", "addr", opts.HTTPAddr)
	}

	logger.Info("started",
		"poll", opts.Poll,
		"mode", cfg.Mode,
		"cut_output", cfg.CutOutput,
		"lock_enabled", cfg.Lock.Enabled,
		"rpm_source", cfg.RPMSource,
		"broker", opts.Broker,
		"session", session)

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		core:       core,
		trigger:    trigger,
		output:     out,
		tach:       tach,
		cfg:        store,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		exec:       exec,
		heartbeat:  opts.Heartbeat,
		now:        time.Now,
		tick:       ticker.C,
		sig:        sigCh,
		log:        logger,
	})
}

// openStore returns the settings provider. An empty path keeps settings in
// memory for the life of the process.
func openStore(path string) (config.Provider, error) {
	if path == "" {
		return config.NewMemory(config.Defaults()), nil
	}
	store, err := config.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// loopDeps are the collaborators of runLoop. Everything here is only touched
// from the loop goroutine, apart from the thread-safe tracker and publisher.
type loopDeps struct {
	core       *logic.Core
	trigger    *gpio.Trigger
	output     *gpio.Output
	tach       *tachInput // nil when the RPM input is fixed
	cfg        config.Provider
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	exec       *loopExec
	heartbeat  time.Duration
	now        func() time.Time
	tick       <-chan time.Time
	sig        <-chan os.Signal
	log        *slog.Logger
}

func runLoop(d loopDeps) error {
	defer d.exec.stop()

	start := d.now()
	d.core.Begin(start)
	prevLock := d.core.Guard.Status()
	lastHeartbeat := start
	pollFailing := false

	d.publishSystem("STARTUP", "", start, true, false)
	if prevLock.Locked {
		d.publishLock(mqtt.LockLocked, "startup", prevLock, start)
	}

	for {
		select {
		case s := <-d.sig:
			d.log.Info("shutting down", "signal", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			// Outputs go first; the SHUTDOWN publish may wait on the broker.
			d.output.Release()
			d.publishSystem("SHUTDOWN", signalName, d.now(), true, true)
			return nil

		case req := <-d.exec.reqs:
			req.fn()
			close(req.done)

		case <-d.tick:
			t := d.now()
			cfg := d.cfg.Get()

			if d.tach != nil {
				if err := d.tach.apply(cfg.RPMSource); err != nil {
					d.log.Error("rpm source switch failed", "err", err)
				}
			}

			if err := d.trigger.Poll(t, cfg.Debounce()); err != nil {
				if !pollFailing {
					d.log.Error("shift input read error", "err", err)
					pollFailing = true
				}
			} else if pollFailing {
				d.log.Info("shift input recovered")
				pollFailing = false
			}

			res := d.core.Step(t)
			if err := d.output.Err(); err != nil {
				d.log.Error("output write error", "err", err)
			}

			lock := d.core.Guard.Status()
			d.lockEvents(prevLock, lock, res, t)
			prevLock = lock

			d.tracker.Update(d.core.Controller.Status(), lock, cfg.Mode)
			d.tracker.SetIO(d.trigger.RawLevel(), d.output.IsActive())
			if d.mqttStatus != nil {
				d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
			}

			if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = t
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				d.log.Info("heartbeat", "uptime", t.Sub(start).Truncate(time.Second), "locked", lock.Locked)
				d.publishSystem("HEARTBEAT", "", t, false, false)
			}
		}
	}
}

// lockEvents reports lock transitions between two consecutive ticks. Changes
// made through the web API between ticks are picked up here too.
func (d loopDeps) lockEvents(prev, cur logic.LockStatus, res logic.StepResult, t time.Time) {
	if prev.Enabled != cur.Enabled {
		ev := mqtt.LockDisabled
		if cur.Enabled {
			ev = mqtt.LockEnabled
		}
		d.publishLock(ev, "", cur, t)
	}
	if !prev.Locked && cur.Locked {
		d.publishLock(mqtt.LockLocked, "", cur, t)
	}
	if res.Unlocked {
		d.publishLock(mqtt.LockUnlocked, "", cur, t)
	}
	if prev.Frozen == logic.FrozenNone && cur.Frozen != logic.FrozenNone {
		d.publishLock(mqtt.LockLockout, string(cur.Frozen), cur, t)
	}
	if cur.Retries > prev.Retries {
		d.log.Warn("wrong lock code", "retries", cur.Retries)
	}
}

func (d loopDeps) publishLock(event, reason string, st logic.LockStatus, t time.Time) {
	level := slog.LevelInfo
	if event == mqtt.LockLockout {
		level = slog.LevelWarn
	}
	d.log.Log(context.Background(), level, "lock", "event", event, "reason", reason, "retries", st.Retries)
	err := d.publisher.PublishLock(mqtt.LockEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retries:   st.Retries,
	})
	if err != nil {
		d.log.Warn("lock publish error", "err", err)
	}
}

// publishSystem sends a lifecycle event. wait is only allowed once the
// outputs are released: nothing else on the loop may block on the network.
func (d loopDeps) publishSystem(event, reason string, t time.Time, retained, wait bool) {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		Wait:       wait,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.Warn("system publish error", "event", event, "err", err)
	}
}

// cutSink fans each cut record out to the in-memory log and MQTT.
type cutSink struct {
	log    *status.CutLog
	pub    mqtt.Publisher
	logger *slog.Logger
}

func (s *cutSink) Append(rec logic.CutRecord) {
	s.log.Append(rec)
	s.logger.Info("cut", "rpm", rec.RPM, "ms", rec.CutMs, "line", rec.Line, "backfire", rec.Backfire)
	if err := s.pub.PublishCut(rec); err != nil {
		s.logger.Warn("cut publish error", "err", err)
	}
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) PublishCut(logic.CutRecord) error     { return nil }
func (nopPublisher) PublishLock(mqtt.LockEvent) error     { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
func (nopPublisher) IsConnected() bool                    { return false }
