// Command bootkey waits on the boot key GPIO line and delivers every sampled
// level to stdout and, optionally, to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/bootkey/internal/button"
	"github.com/sweeney/bootkey/internal/gpio"
	"github.com/sweeney/bootkey/internal/mqtt"
	"github.com/sweeney/bootkey/internal/status"
	"github.com/sweeney/bootkey/internal/web"
)

// readSize is the caller buffer for each read: one digit and a newline.
const readSize = 2

var rootOpts = struct {
	Chip     string
	Line     int
	Major    uint32
	Minor    uint32
	Broker   string
	HTTPAddr string
	Debug    bool
}{}

var rootCmd = &cobra.Command{
	Use:          "bootkey",
	Short:        "bootkey reports the boot key level on every edge",
	Long:         "bootkey blocks on edges of the boot key GPIO line and writes each sampled level as a decimal digit.",
	Args:         cobra.NoArgs,
	RunE:         runRoot,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootOpts.Chip, "chip", gpio.DefaultChip, "GPIO chip name")
	pf.IntVar(&rootOpts.Line, "line", button.DefaultLine, "line offset of the boot key")
	pf.BoolVar(&rootOpts.Debug, "debug", false, "enable development logging")

	f := rootCmd.Flags()
	f.Uint32Var(&rootOpts.Major, "major", button.DefaultMajor, "device major number")
	f.Uint32Var(&rootOpts.Minor, "minor", button.DefaultMinor, "device minor number")
	f.StringVar(&rootOpts.Broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	f.StringVar(&rootOpts.HTTPAddr, "http", ":80", "HTTP status address (empty to disable)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bootkey: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return l.Sugar(), nil
}

func runRoot(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(rootOpts.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dev := button.DefaultConfig()
	dev.Line = rootOpts.Line
	dev.Major = rootOpts.Major
	dev.Minor = rootOpts.Minor

	cfg := daemonConfig{
		Chip:     rootOpts.Chip,
		Device:   dev,
		Broker:   rootOpts.Broker,
		HTTPAddr: rootOpts.HTTPAddr,
	}
	chip := gpio.NewRealChip(cfg.Chip, gpio.DefaultConsumer)
	return run(cmd.Context(), cfg, chip, logger)
}

// daemonConfig is the resolved command line.
type daemonConfig struct {
	Chip     string
	Device   button.Config
	Broker   string // empty disables MQTT
	HTTPAddr string // empty disables the status server
}

// signalCause records which signal stopped the daemon.
type signalCause struct {
	sig os.Signal
}

func (c signalCause) Error() string {
	return "received " + c.sig.String()
}

// shutdownReason names the signal that cancelled ctx, or UNKNOWN.
func shutdownReason(ctx context.Context) string {
	var sc signalCause
	if !errors.As(context.Cause(ctx), &sc) {
		return "UNKNOWN"
	}
	switch sc.sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func run(ctx context.Context, dc daemonConfig, chip gpio.Acquirer, logger *zap.SugaredLogger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, broker, httpAddr := dc.Device, dc.Broker, dc.HTTPAddr

	dev := button.New(cfg, chip, logger)
	session, err := dev.Open()
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warnw("close device", "error", err)
		}
		logger.Infow("driver unloaded")
	}()

	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if broker != "" {
		p, err := mqtt.NewRealPublisher(broker, logger.With("component", "mqtt"))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:     dc.Chip,
		Line:     cfg.Line,
		Major:    cfg.Major,
		Minor:    cfg.Minor,
		Broker:   broker,
		HTTPAddr: httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(dev.Stats())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	if publisher != nil {
		snap := tracker.Snapshot()
		if err := publisher.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}); err != nil {
			logger.Warnw("failed to publish startup event", "error", err)
		} else {
			logger.Infow("published startup event")
		}
	}

	sinks := []io.Writer{os.Stdout}
	if publisher != nil {
		sinks = append(sinks, mqtt.NewSink(publisher, time.Now))
	}
	sink := newFanout(sinks...)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case s := <-sigCh:
			logger.Infow("shutting down", "signal", s)
			cancel(signalCause{s})
		case <-gctx.Done():
		}
		return nil
	})

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
		logger.Infow("http status server listening", "addr", httpAddr)
	}

	logger.Infow("driver loaded", "chip", dc.Chip, "line", cfg.Line, "major", cfg.Major, "minor", cfg.Minor, "broker", broker)

	g.Go(func() error {
		defer cancel(nil)
		return runLoop(gctx, session, dev, sink, publisher, mqttStatus, tracker, time.Now, logger)
	})

	return g.Wait()
}

// runLoop delivers one sample per edge to sink until ctx is cancelled or the
// session is closed, then publishes SHUTDOWN. publisher and mqttStatus may be
// nil.
func runLoop(ctx context.Context, session *button.Session, dev *button.Device, sink io.Writer, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, logger *zap.SugaredLogger) error {
	for {
		n, err := session.Read(ctx, sink, readSize)
		if errors.Is(err, button.ErrInterrupted) || errors.Is(err, button.ErrClosed) {
			publishShutdown(shutdownReason(ctx), publisher, mqttStatus, tracker, dev, now, logger)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", button.DefaultName, err)
		}

		stats := dev.Stats()
		logger.Debugw("delivered sample", "level", stats.Level, "bytes", n, "offset", session.Offset(), "dropped", stats.Dropped)

		tracker.Update(stats)
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}
}

func publishShutdown(reason string, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, dev *button.Device, now func() time.Time, logger *zap.SugaredLogger) {
	if publisher == nil {
		return
	}
	tracker.Update(dev.Stats())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warnw("failed to publish shutdown event", "error", err)
		return
	}
	logger.Infow("published shutdown event", "reason", reason)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
