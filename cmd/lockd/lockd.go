package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hs-CN/remote-servo-controllor/internal/api"
	"github.com/hs-CN/remote-servo-controllor/internal/blemux"
	"github.com/hs-CN/remote-servo-controllor/internal/config"
	"github.com/hs-CN/remote-servo-controllor/internal/db"
	"github.com/hs-CN/remote-servo-controllor/internal/lock"
	"github.com/hs-CN/remote-servo-controllor/internal/monitoring"
	"github.com/hs-CN/remote-servo-controllor/internal/servo"
	"github.com/hs-CN/remote-servo-controllor/internal/timeutil"
	"github.com/hs-CN/remote-servo-controllor/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode (mock servo and BLE radio)")
	listen        = flag.String("listen", ":8080", "Listen address")
	servoBackend  = flag.String("backend", "pca9685", "Servo backend: pca9685, maestro, or mock")
	i2cBus        = flag.String("i2c-bus", "", "I2C bus for the pca9685 backend (empty picks the first available)")
	i2cAddr       = flag.Uint("i2c-addr", 0x40, "I2C address of the PCA9685")
	pwmChannel    = flag.Int("pwm-channel", 0, "Output channel the servo signal wire is on")
	serialPort    = flag.String("serial-port", "/dev/ttyACM0", "Serial port for the maestro backend")
	dbFile        = flag.String("db", "lock_audit.db", "Path to the audit database")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	configFile    = flag.String("config", "", "Path to a JSON tuning file (defaults apply when empty)")
)

// openPWMOutput builds the drive output named by backend. Dev mode
// never reaches the hardware paths.
func openPWMOutput(backend, bus string, addr uint16, port string, channel int) (servo.PWMOutput, error) {
	switch backend {
	case "mock":
		return servo.NewMockPWM(), nil
	case "pca9685":
		return servo.OpenPCA9685(bus, addr, channel)
	case "maestro":
		return servo.OpenMaestro(port, uint8(channel))
	default:
		return nil, fmt.Errorf("unknown servo backend %q", backend)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// recordEvent writes completed actuations and rejected commands to the
// audit store. Ready and accepted transitions are transient and are not
// persisted.
func recordEvent(database *db.DB, ev lock.Event) error {
	switch ev.Kind {
	case lock.EventActuated:
		requested := ev.Time.Add(-time.Duration(ev.DurationMs) * time.Millisecond)
		return database.RecordActuation(db.Actuation{
			ID:          ev.ID,
			Degree:      uint8(ev.Degree),
			Source:      ev.Source,
			Payload:     ev.Payload,
			RequestedAt: unixSeconds(requested),
			CompletedAt: unixSeconds(ev.Time),
			DurationMs:  ev.DurationMs,
		})
	case lock.EventRejected, lock.EventBusy:
		return database.RecordRejection(db.Rejection{
			ID:         ev.ID,
			Payload:    ev.Payload,
			Reason:     ev.Reason,
			Source:     ev.Source,
			RejectedAt: unixSeconds(ev.Time),
		})
	}
	return nil
}

// Main
func main() {
	flag.Parse()

	// maintenance path: "lockd migrate <subcommand>" runs against the
	// audit database and exits without touching servo or radio
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile, *migrationsDir)
		return
	}

	monitoring.SetVerbose(*devMode)
	log.Printf("lockd %s", version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.DefaultLockConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadLockConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = cfg.Merge(fileCfg)
		log.Printf("loaded tuning config from %s", *configFile)
	}

	backend := *servoBackend
	if *devMode {
		backend = "mock"
	}
	out, err := openPWMOutput(backend, *i2cBus, uint16(*i2cAddr), *serialPort, *pwmChannel)
	if err != nil {
		log.Fatalf("failed to open servo backend: %v", err)
	}

	horn := servo.NewCalibrated(out, cfg.GetDutyOffset())
	defer horn.Close()
	log.Printf("opened %s servo backend, max duty %d", backend, horn.MaxDuty())

	clk := timeutil.RealClock{}
	ctrl := lock.New(horn, lock.Options{
		Dwell:      cfg.GetDwell(),
		Settle:     cfg.GetSettle(),
		RestDegree: cfg.GetRestDegree(),
		Clock:      clk,
	})

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var bleBackend blemux.Backend
	if *devMode {
		bleBackend = blemux.NewMockBackend()
	} else {
		bleBackend = blemux.NewBlueZBackend()
	}
	ble := blemux.New(bleBackend, ctrl)
	if err := ble.Start(); err != nil {
		log.Fatalf("failed to start BLE peripheral: %v", err)
	}
	defer ble.Stop()

	// Create a wait group for the controller, recorder, status, and HTTP
	// server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the controller routine that owns the servo
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			log.Printf("controller failed: %v", err)
			// an actuator fault takes the whole process down; a lock
			// that cannot move should not keep advertising
			stop()
		}
		log.Print("controller routine terminated")
	}()

	// subscribe to controller events and persist them to the audit store
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, events := ctrl.Subscribe()
		defer ctrl.Unsubscribe(id)
		for {
			select {
			case ev := <-events:
				if err := recordEvent(database, ev); err != nil {
					log.Printf("error recording event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("recorder routine terminated")
				return
			}
		}
	}()

	// periodic status line so long-running deployments show a heartbeat
	// in the journal
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clk.NewTicker(cfg.GetStatusPeriod())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				st := ctrl.Status()
				log.Printf("status: state=%s busy=%t actuated=%d rejected=%d busy_drops=%d uptime=%ds",
					st.State, st.Busy, st.Actuated, st.Rejected, st.BusyDrops, st.UptimeSeconds)
			case <-ctx.Done():
				log.Printf("status routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance using the controller and
		// database and mount the API handlers
		apiServer := api.NewServer(ctrl, database, ble, cfg)
		mux := apiServer.ServeMux()

		apiServer.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
