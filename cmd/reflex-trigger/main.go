// Command reflex-trigger watches three GPIO sense lines and answers each
// confirmed rising edge with a short pulse on its cross-routed output.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/reflex-trigger/internal/config"
	"github.com/sweeney/reflex-trigger/internal/diag"
	"github.com/sweeney/reflex-trigger/internal/gpio"
	"github.com/sweeney/reflex-trigger/internal/logger"
	"github.com/sweeney/reflex-trigger/internal/mqtt"
	"github.com/sweeney/reflex-trigger/internal/status"
	"github.com/sweeney/reflex-trigger/internal/trigger"
	"github.com/sweeney/reflex-trigger/internal/web"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile    string
		printState bool
	)

	cmd := &cobra.Command{
		Use:          "reflex-trigger",
		Short:        "Pulse a routed output for every confirmed sense edge",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

			if printState {
				return printInputs(cmd.OutOrStdout(), cfg.Pins(), openRealBoard)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			ctx, stop := notifyContext(cmd.Context(), sigCh)
			defer stop()

			d := &daemon{
				cfg:          cfg,
				openBoard:    openRealBoard,
				newPublisher: newRealPublisher,
				clock:        clock.New(),
				stdout:       cmd.OutOrStdout(),
			}
			return d.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file (default reflex-trigger.yaml in /etc/reflex-trigger or .)")
	cmd.Flags().BoolVar(&printState, "print-state", false, "print the current input levels and exit")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

type board interface {
	Lines() gpio.Lines
	Close() error
}

type publisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func openRealBoard(p gpio.Pins, onRise gpio.EdgeFunc) (board, error) {
	b, err := gpio.NewRealBoard(p, onRise)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newRealPublisher(opt mqtt.Options) (publisher, error) {
	p, err := mqtt.NewRealPublisher(opt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// daemon wires the pipeline to its observers for one run.
type daemon struct {
	cfg          config.Config
	openBoard    func(gpio.Pins, gpio.EdgeFunc) (board, error)
	newPublisher func(mqtt.Options) (publisher, error)
	clock        trigger.Clock
	stdout       io.Writer
}

func (d *daemon) run(ctx context.Context) (err error) {
	log := logger.Named("main")

	flags := &trigger.Flags{}
	b, err := d.openBoard(d.cfg.Pins(), trigger.Capture(flags))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("release gpio: %w", cerr))
		}
	}()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(d.clock.Now(), statusConfig(d.cfg))
	reporters := []trigger.Reporter{tracker}
	if d.cfg.Console {
		reporters = append(reporters, diag.NewConsole(d.stdout))
	}

	var fwd *mqtt.Forwarder
	if d.cfg.MQTT.Broker != "" {
		pub, err := d.newPublisher(mqtt.Options{
			Broker:             d.cfg.MQTT.Broker,
			OnConnectionChange: tracker.SetMQTTConnected,
			Log:                logger.Named("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		tracker.SetMQTTConnected(pub.IsConnected())

		fwd = mqtt.NewForwarder(pub, mqtt.ForwarderOptions{
			Heartbeat: d.cfg.MQTT.Heartbeat,
			Status: func(event, reason string) []byte {
				return status.FormatStatusEvent(tracker.Snapshot(), event, reason)
			},
			Log: logger.Named("mqtt"),
		})
		reporters = append(reporters, fwd)
	}

	var srv *web.Server
	var ln net.Listener
	if d.cfg.HTTP.Addr != "" {
		ln, err = net.Listen("tcp", d.cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv = web.New(d.cfg.HTTP.Addr, tracker)
		log.Info().Str("addr", ln.Addr().String()).Msg("http status server listening")
	}

	ctl := trigger.NewController(b.Lines(), flags, d.clock, diag.Join(reporters...), logger.Named("trigger"))

	log.Info().
		Str("chip", d.cfg.GPIO.Chip).
		Ints("detect", d.cfg.GPIO.Detect).
		Ints("hit", d.cfg.GPIO.Hit).
		Int("led", d.cfg.GPIO.LED).
		Str("broker", d.cfg.MQTT.Broker).
		Msg("started")

	g, gctx := errgroup.WithContext(ctx)
	if fwd != nil {
		g.Go(func() error { return fwd.Run(gctx) })
	}
	if srv != nil {
		g.Go(func() error { return srv.Run(gctx, ln) })
	}
	g.Go(func() error {
		ctl.Startup()
		tracker.SetPhase(status.PhaseRunning)
		log.Info().Msg("running")
		return ctl.Run(gctx)
	})

	err = g.Wait()
	tracker.SetPhase(status.PhaseStopped)

	reason := shutdownReason(context.Cause(ctx))
	log.Info().Str("reason", reason).Msg("shutting down")
	if fwd != nil {
		fwd.System(mqtt.EventShutdown, reason)
	}
	return err
}

func statusConfig(c config.Config) status.Config {
	return status.Config{
		Chip:        c.GPIO.Chip,
		DetectPins:  c.GPIO.Detect,
		HitPins:     c.GPIO.Hit,
		LEDPin:      c.GPIO.LED,
		Broker:      c.MQTT.Broker,
		HeartbeatMs: c.MQTT.Heartbeat.Milliseconds(),
		HTTPAddr:    c.HTTP.Addr,
	}
}

// printInputs reads each sense line once and prints its level.
func printInputs(w io.Writer, p gpio.Pins, open func(gpio.Pins, gpio.EdgeFunc) (board, error)) (err error) {
	b, err := open(p, nil)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("release gpio: %w", cerr))
		}
	}()

	parts := make([]string, 0, gpio.NumDetect)
	for i, in := range b.Lines().Detect {
		ch := trigger.Channel(i)
		v, err := in.Value()
		if err != nil {
			return fmt.Errorf("read %s: %w", ch, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", ch, levelString(v)))
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
	return nil
}

func levelString(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}

// signalCause is the cancellation cause recorded when a signal arrives.
type signalCause struct {
	sig os.Signal
}

func (s signalCause) Error() string {
	return "received " + s.sig.String()
}

// notifyContext returns a context cancelled by the first value on sig, with
// the signal kept as the context's cause.
func notifyContext(parent context.Context, sig <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case s := <-sig:
			cancel(signalCause{sig: s})
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

func shutdownReason(cause error) string {
	var sc signalCause
	if errors.As(cause, &sc) {
		return signalName(sc.sig)
	}
	return "UNKNOWN"
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
