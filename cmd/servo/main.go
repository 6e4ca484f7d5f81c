// Command servo runs the depth-camera visual-servoing controller.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/depth-servo/internal/config"
	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/monitor"
	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/sensor"
	"github.com/banshee-data/depth-servo/internal/servo"
	"github.com/banshee-data/depth-servo/internal/telemetry"
	"github.com/banshee-data/depth-servo/internal/version"
)

var (
	configPath   = flag.String("config", "", "Servo tuning file (.json/.yaml); empty uses built-in defaults")
	listen       = flag.String("listen", ":8080", "HTTP status API listen address (empty disables)")
	healthListen = flag.String("health-listen", ":50051", "gRPC health service listen address (empty disables)")
	sourceKind   = flag.String("source", "udp", "Depth frame source: udp or replay")
	depthListen  = flag.String("depth-listen", ":5600", "UDP address for the chunked depth stream")
	replayPath   = flag.String("replay", "", "Raw frame file for -source=replay")
	replayPeriod = flag.Duration("replay-period", 33*time.Millisecond, "Frame interval for -source=replay")
	replayLoop   = flag.Bool("replay-loop", false, "Rewind the replay file at EOF")
	transport    = flag.String("transport", "", "Override command transport: udp or serial")
	vehicleAddr  = flag.String("vehicle", "", "Override vehicle host:port for the udp transport")
	telemetryDB  = flag.String("telemetry-db", "servo_telemetry.db", "SQLite telemetry database (empty disables)")
	sessionNotes = flag.String("notes", "", "Free-form notes stored with the telemetry session")
	overlayDir   = flag.String("overlay-dir", "", "Write annotated frames to this directory")
	overlayEvery = flag.Int("overlay-every", 30, "Write one annotated frame out of N")
	statusRing   = flag.Int("status-history", 1200, "Ticks retained for /api/status and /debug/ticks")
	debug        = flag.Bool("debug", false, "Enable the diag log stream (per-tick status)")
	trace        = flag.Bool("trace", false, "Enable the trace log stream (per-frame detail)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logs := monitoring.LogWriters{Ops: os.Stderr}
	if *debug {
		logs.Diag = os.Stderr
	}
	if *trace {
		logs.Trace = os.Stderr
	}
	monitoring.SetLogWriters(logs)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyOverrides(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("servo: %v", err)
	}
	monitoring.Opsf("graceful shutdown complete")
}

func loadConfig(path string) (*config.ServoConfig, error) {
	if path == "" {
		return config.EmptyServoConfig(), nil
	}
	return config.LoadServoConfig(path)
}

func applyOverrides(cfg *config.ServoConfig) {
	if *transport != "" {
		cfg.Transport = transport
	}
	if *vehicleAddr != "" {
		cfg.VehicleAddr = vehicleAddr
	}
}

// openChannel opens the configured command transport.
func openChannel(cfg *config.ServoConfig, open servo.PortOpener) (servo.CommandChannel, error) {
	switch cfg.GetTransport() {
	case "udp":
		return servo.NewUDPChannel(cfg.GetVehicleAddr())
	case "serial":
		return servo.NewSerialChannel(cfg.GetSerialPort(), servo.PortOptions{BaudRate: cfg.GetSerialBaud()}, open)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.GetTransport())
	}
}

// newSource builds the frame source selected on the command line.
func newSource(kind string, cfg *config.ServoConfig) (sensor.Source, error) {
	switch kind {
	case "udp":
		return sensor.NewUDPSource(sensor.UDPSourceConfig{Address: *depthListen, RcvBuf: 4 << 20}), nil
	case "replay":
		if *replayPath == "" {
			return nil, errors.New("-source=replay requires -replay")
		}
		src := sensor.NewReplaySource(*replayPath, cfg.GetFrameWidth(), cfg.GetFrameHeight(), *replayPeriod)
		src.Loop = *replayLoop
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source %q", kind)
	}
}

func knobsFromConfig(cfg *config.ServoConfig) depth.Knobs {
	return depth.Knobs{
		Band:   depth.DepthBand{Min: cfg.GetMinDepth(), Max: cfg.GetMaxDepth()},
		Window: depth.AreaWindow{Min: cfg.GetMinBlobArea(), Max: cfg.GetMaxBlobArea()},
	}
}

// shutdown disarms the vehicle and closes its link, and only then stops the
// frame source and waits for it to release the sensor.
func shutdown(sched *servo.Scheduler, stopSource context.CancelFunc, sourceDone <-chan struct{}) error {
	err := sched.Stop()
	stopSource()
	<-sourceDone
	return err
}

func run(parent context.Context, cfg *config.ServoConfig) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	channel, err := openChannel(cfg, nil)
	if err != nil {
		return err
	}
	monitoring.Opsf("command transport %v", channel)

	// Telemetry is optional; a failure to open it is not fatal.
	var recorder *telemetry.Recorder
	var store *telemetry.Store
	if *telemetryDB != "" {
		store, err = telemetry.Open(*telemetryDB)
		if err != nil {
			monitoring.Opsf("telemetry disabled: %v", err)
		} else {
			cfgJSON, _ := json.Marshal(cfg)
			session, err := store.StartSession(ctx, time.Now(), *sessionNotes, string(cfgJSON))
			if err != nil {
				monitoring.Opsf("telemetry disabled: %v", err)
				store.Close()
				store = nil
			} else {
				recorder = telemetry.NewRecorder(store, session, 0)
				monitoring.Opsf("telemetry session %s in %s", session, *telemetryDB)
			}
		}
	}

	ring := monitor.NewStatusRing(*statusRing)
	sinks := servo.MultiSink{servo.LogSink{}, ring}
	if recorder != nil {
		sinks = append(sinks, recorder)
	}

	tracker := servo.NewTargetTracker(nil)
	thrust, roll, pitch, err := servo.NewAxesFromConfig(cfg)
	if err != nil {
		channel.Close()
		return err
	}
	ctrl, err := servo.NewController(servo.ControllerConfig{
		Target:           tracker,
		Thrust:           thrust,
		Roll:             roll,
		Pitch:            pitch,
		Channel:          channel,
		Sink:             sinks,
		TargetLossFrames: cfg.GetTargetLossFrames(),
	})
	if err != nil {
		channel.Close()
		return err
	}
	sched, err := servo.NewScheduler(ctrl, nil, cfg.GetTickPeriod())
	if err != nil {
		channel.Close()
		return err
	}

	health := monitor.NewHealthService()
	sched.OnStateChange(health.ObserveState)

	knobs := depth.NewKnobStore(knobsFromConfig(cfg))
	var overlay depth.OverlayFunc
	if *overlayDir != "" {
		if err := os.MkdirAll(*overlayDir, 0o755); err != nil {
			channel.Close()
			return fmt.Errorf("overlay dir: %w", err)
		}
		overlay = depth.SnapshotWriter(*overlayDir, *overlayEvery)
	}
	pipeline := depth.NewPipeline(depth.PipelineConfig{
		Width:   cfg.GetFrameWidth(),
		Height:  cfg.GetFrameHeight(),
		Knobs:   knobs,
		Target:  tracker,
		Overlay: overlay,
	})

	source, err := newSource(*sourceKind, cfg)
	if err != nil {
		channel.Close()
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("control loop: %v", err)
		}
	}()

	// The source outlives ctx so that the sensor is only released after the
	// vehicle has been disarmed. The control loop keeps ticking on the last
	// target if the sensor drops.
	sourceCtx, stopSource := context.WithCancel(context.Background())
	defer stopSource()
	sourceDone := make(chan struct{})
	go func() {
		defer close(sourceDone)
		err := source.Run(sourceCtx, func(f depth.DepthFrame) {
			if _, err := pipeline.ProcessFrame(f); err != nil {
				monitoring.Tracef("frame dropped: %v", err)
			}
		})
		switch {
		case err == nil:
			monitoring.Opsf("frame source finished, stopping")
			cancel()
		case !errors.Is(err, context.Canceled):
			monitoring.Opsf("frame source failed: %v", err)
		}
	}()

	if *healthListen != "" {
		if err := health.Start(*healthListen); err != nil {
			monitoring.Opsf("gRPC health disabled: %v", err)
		}
	}

	if *listen != "" {
		wsCfg := monitor.WebServerConfig{
			Address:    *listen,
			Ring:       ring,
			Knobs:      knobs,
			Scheduler:  sched,
			Health:     health,
			Controller: ctrl.Stats,
			Pipeline:   pipeline.Stats,
		}
		if store != nil {
			wsCfg.Session = recorder.Session()
			wsCfg.Attach = func(mux *http.ServeMux) error { return store.AttachAdminRoutes(mux) }
		}
		ws, err := monitor.NewWebServer(wsCfg)
		if err != nil {
			monitoring.Opsf("HTTP server disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ws.Start(ctx); err != nil {
					monitoring.Opsf("HTTP server: %v", err)
				}
			}()
		}
	}

	<-ctx.Done()
	monitoring.Opsf("shutting down")

	if err := shutdown(sched, stopSource, sourceDone); err != nil {
		monitoring.Opsf("stop: %v", err)
	}
	wg.Wait()
	health.Stop()

	monitoring.Opsf("controller: %+v, pipeline: %+v", ctrl.Stats(), pipeline.Stats())
	if recorder != nil {
		recorder.Close()
	}
	if store != nil {
		store.Close()
	}
	return nil
}
