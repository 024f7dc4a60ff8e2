// Command trackcoach runs the live coaching service: it subscribes to car
// telemetry over MQTT or a serial radio, emits coaching cues and serves a
// small status API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/trackcoach/internal/api"
	"github.com/banshee-data/trackcoach/internal/artifacts"
	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/config"
	"github.com/banshee-data/trackcoach/internal/db"
	"github.com/banshee-data/trackcoach/internal/monitoring"
	"github.com/banshee-data/trackcoach/internal/serialmux"
	"github.com/banshee-data/trackcoach/internal/service"
	"github.com/banshee-data/trackcoach/internal/transport"
	"github.com/banshee-data/trackcoach/internal/version"
)

var (
	configPath     = flag.String("config", "", "Path to a JSON coach config (built-in defaults when empty)")
	artifactsDir   = flag.String("artifacts", "", "Artifacts directory (overrides artifacts_dir)")
	dbPath         = flag.String("db", "", "SQLite database path (overrides db_path)")
	listen         = flag.String("listen", ":8080", "HTTP listen address; empty disables the API")
	serialPort     = flag.String("serial", "", "Serial port carrying line-delimited JSON telemetry")
	serialBaud     = flag.Int("serial-baud", serialmux.DefaultBaudRate, "Serial baud rate")
	serialInit     = flag.String("serial-init", "", "Commands sent to the radio after opening, separated by ';'")
	noMQTT         = flag.Bool("no-mqtt", false, "Do not connect to the MQTT broker")
	connectTimeout = flag.Duration("connect-timeout", 10*time.Second, "Timeout for the first broker connection")
	debug          = flag.Bool("debug", false, "Enable debug logging")
	showVersion    = flag.Bool("version", false, "Print version and exit")
	migrateStatus  = flag.Bool("migrate-status", false, "Print the database schema version and exit")
	migrateDown    = flag.Bool("migrate-down", false, "Roll back the most recent database migration and exit")
)

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.CoachConfig, error) {
	if path == "" {
		return config.DefaultCoachConfig(), nil
	}
	return config.LoadCoachConfig(path)
}

func mqttOptions(cfg *config.CoachConfig) transport.Options {
	return transport.Options{
		Broker:         cfg.GetMQTTBroker(),
		ClientID:       cfg.GetMQTTClientID(),
		Username:       cfg.GetMQTTUsername(),
		Password:       cfg.GetMQTTPassword(),
		TelemetryTopic: cfg.GetTelemetryTopic(),
		ControlTopic:   cfg.GetControlTopic(),
		CuesTopic:      cfg.GetCuesTopic(),
		StatusTopic:    cfg.GetStatusTopic(),
	}
}

type broker interface {
	service.Publisher
	Connect(ctx context.Context) error
}

type publisherSetter interface {
	SetPublisher(p service.Publisher)
}

// connectPublisher attaches b to svc and then connects it, so cues emitted
// by the first delivered messages are published.
func connectPublisher(ctx context.Context, svc publisherSetter, b broker, timeout time.Duration) error {
	svc.SetPublisher(b)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.Connect(ctx)
}

// runMigrateCommand handles -migrate-down and -migrate-status, writing the
// resulting schema version to w.
func runMigrateCommand(store *db.DB, down bool, w io.Writer) error {
	if down {
		if err := store.MigrateDown(); err != nil {
			return err
		}
	}
	version, dirty, err := store.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(w, "schema version %d (%s, latest %d)\n", version, state, db.LatestVersion)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)
	log.Printf("trackcoach %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	coachCfg := coach.ConfigFromTuning(cfg)
	if err := coachCfg.Validate(); err != nil {
		log.Fatalf("invalid coach config: %v", err)
	}

	store, err := db.Open(firstNonEmpty(*dbPath, cfg.GetDBPath()))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if *migrateStatus || *migrateDown {
		if err := runMigrateCommand(store, *migrateDown, os.Stdout); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		return
	}

	dir := firstNonEmpty(*artifactsDir, cfg.GetArtifactsDir())
	art, err := artifacts.LoadDirWithFallback(dir, store)
	if err != nil {
		log.Fatalf("failed to load artifacts from %s: %v", dir, err)
	}
	log.Printf("loaded track %.0f m, %d stop lines, %d turns, %d zone memory entries",
		art.Track.Length, len(art.StopLines), len(art.Turns), art.Memory.Len())

	svc, err := service.New(coachCfg, art, service.Options{Store: store})
	if err != nil {
		log.Fatalf("failed to start coach: %v", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	var client *transport.Client
	if !*noMQTT {
		client = transport.NewClient(mqttOptions(cfg), svc)
		if err := connectPublisher(ctx, svc, client, *connectTimeout); err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer client.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RunHeartbeat(ctx, cfg.GetHeartbeatInterval())
		}()
	}

	var mux *serialmux.SerialMux[serial.Port]
	if *serialPort != "" {
		m, err := serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		mux = m
		defer mux.Close()

		if err := serialmux.SendCommands(mux, serialmux.SplitCommands(*serialInit)); err != nil {
			log.Fatalf("failed to initialise radio: %v", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial monitor stopped: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			serialmux.Forward(ctx, mux, svc.HandleTelemetry)
		}()
	}

	if client == nil && mux == nil {
		log.Printf("no telemetry input configured; only the control API will respond")
	}

	if *listen != "" {
		opts := []api.Option{api.WithCueLog(store)}
		if mux != nil {
			opts = append(opts, api.WithSerial(mux))
		}
		if client != nil {
			opts = append(opts, api.WithConnected(client.IsConnected))
		}
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.NewServer(svc, opts...).ServeMux()),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("HTTP API listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server error: %v", err)
				stop()
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
