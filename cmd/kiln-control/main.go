// Command kiln-control regulates an electric kiln: each tick it reads
// the thermocouple, computes element power (PID or direct), drives the
// heater relay with slow PWM, and publishes state over MQTT and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
	"github.com/sweeney/kiln-control/internal/datalog"
	"github.com/sweeney/kiln-control/internal/device"
	"github.com/sweeney/kiln-control/internal/mqtt"
	"github.com/sweeney/kiln-control/internal/status"
	"github.com/sweeney/kiln-control/internal/tuning"
	"github.com/sweeney/kiln-control/internal/web"
)

// mqttStatusPoll is how often the tracker's MQTT-connected flag is
// refreshed for the status page.
const mqttStatusPoll = 5 * time.Second

type config struct {
	tick        time.Duration
	mode        control.Mode
	setpoint    float64
	power       float64
	tuningPath  string
	smooth      int
	broker      string
	httpAddr    string
	spiDev      string
	relayPin    int
	datalogPath string
	printTemp   bool
}

func main() {
	tick := flag.Duration("tick", time.Second, "control period (also the PWM period)")
	mode := flag.String("mode", "regulated", "control mode: regulated or unregulated")
	setpoint := flag.Float64("setpoint", 0, "initial target temperature in degC (regulated mode)")
	power := flag.Float64("power", 0, "initial power percentage (unregulated mode)")
	tuningPath := flag.String("tuning", "tuning.yaml", "PID tuning file")
	smooth := flag.Int("smooth", 5, "moving-average window for temperature smoothing")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	httpAddr := flag.String("http", ":8080", "HTTP status address (empty to disable)")
	spiDev := flag.String("spi", device.DefaultSPIDev, "SPI device for the thermocouple")
	relayPin := flag.Int("relay-pin", device.DefaultRelayPin, "BCM pin number for the element relay")
	datalogPath := flag.String("datalog", "", "CSV datalog path (empty to disable)")
	printTemp := flag.Bool("print-temp", false, "Read the thermocouple once, print, and exit")

	flag.Parse()

	m, err := parseMode(*mode)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	cfg := config{
		tick:        *tick,
		mode:        m,
		setpoint:    *setpoint,
		power:       *power,
		tuningPath:  *tuningPath,
		smooth:      *smooth,
		broker:      *broker,
		httpAddr:    *httpAddr,
		spiDev:      *spiDev,
		relayPin:    *relayPin,
		datalogPath: *datalogPath,
		printTemp:   *printTemp,
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func parseMode(s string) (control.Mode, error) {
	switch control.Mode(s) {
	case control.ModeRegulated:
		return control.ModeRegulated, nil
	case control.ModeUnregulated:
		return control.ModeUnregulated, nil
	}
	return "", fmt.Errorf("unknown mode %q (want regulated or unregulated)", s)
}

func run(cfg config) error {
	sensor, err := device.NewThermocoupleSensor(cfg.spiDev)
	if err != nil {
		return fmt.Errorf("init thermocouple: %w", err)
	}
	defer sensor.Close()

	if cfg.printTemp {
		sample, err := sensor.Read()
		if err != nil {
			return fmt.Errorf("read thermocouple: %w", err)
		}
		fmt.Printf("%.2f degC\n", sample.Celsius)
		return nil
	}

	actuator, err := device.NewRelayActuator(cfg.relayPin)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer actuator.Close()

	// A controller with unknown gains must not run.
	params, err := tuning.Load(cfg.tuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	store := tuning.NewStore(cfg.tuningPath)

	tracker := status.NewTracker(time.Now(), status.Config{
		Mode:       string(cfg.mode),
		TickMs:     cfg.tick.Milliseconds(),
		Smoothing:  cfg.smooth,
		Broker:     cfg.broker,
		HTTPAddr:   cfg.httpAddr,
		TuningPath: cfg.tuningPath,
		RelayPin:   cfg.relayPin,
	})
	notifiers := []control.Notifier{tracker}

	var publisher *mqtt.RealPublisher
	if cfg.broker != "" {
		publisher, err = mqtt.NewRealPublisher(cfg.broker)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, mqtt.NewTelemetry(publisher))
	}

	if cfg.datalogPath != "" {
		dl, err := datalog.Open(cfg.datalogPath)
		if err != nil {
			return fmt.Errorf("init datalog: %w", err)
		}
		defer dl.Close()
		notifiers = append(notifiers, dl)
		log.Printf("datalog: appending to %s", cfg.datalogPath)
	}

	driver := control.NewPWMDriver(nil)
	loop := control.NewLoop(control.LoopConfig{
		Mode:      cfg.mode,
		Tick:      cfg.tick,
		Setpoint:  cfg.setpoint,
		Power:     cfg.power,
		Smoothing: cfg.smooth,
	}, sensor, actuator, store, params, driver, notifiers...)

	if publisher != nil {
		if err := publisher.SubscribeCommands(loop); err != nil {
			log.Printf("mqtt: command subscription failed: %v", err)
		}

		tracker.SetMQTTConnected(publisher.IsConnected())
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, tracker, loop)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	stopPoll := make(chan struct{})
	defer close(stopPoll)
	if publisher != nil {
		go pollMQTTStatus(tracker, publisher, stopPoll)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("received %v, requesting shutdown", s)
		loop.RequestShutdown()
	}()

	log.Printf("started: mode=%s tick=%v setpoint=%.1f smooth=%d tuning=%s broker=%s",
		cfg.mode, cfg.tick, cfg.setpoint, cfg.smooth, cfg.tuningPath, cfg.broker)

	ticker := time.NewTicker(cfg.tick)
	defer ticker.Stop()

	return loop.Run(ticker.C)
}

// pollMQTTStatus keeps the status page's MQTT indicator current.
func pollMQTTStatus(tracker *status.Tracker, conn mqtt.ConnectionStatus, stop <-chan struct{}) {
	ticker := time.NewTicker(mqttStatusPoll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tracker.SetMQTTConnected(conn.IsConnected())
		}
	}
}
