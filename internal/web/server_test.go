package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/kiln-control/internal/control"
	"github.com/sweeney/kiln-control/internal/device"
	"github.com/sweeney/kiln-control/internal/status"
	"github.com/sweeney/kiln-control/internal/tuning"
)

type fakeCommander struct {
	setpoints []float64
	powers    []float64
	shutdowns int
}

func (f *fakeCommander) SetSetpoint(c float64) {
	f.setpoints = append(f.setpoints, c)
}

func (f *fakeCommander) SetPowerDirect(p float64) {
	f.powers = append(f.powers, p)
}

func (f *fakeCommander) RequestShutdown() {
	f.shutdowns++
}

func newTestServer(t *testing.T, cmd Commander) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Mode:       "regulated",
		TickMs:     1000,
		Smoothing:  5,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8080",
		TuningPath: "/etc/kiln/tuning.yaml",
		RelayPin:   17,
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, cmd)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func testReading() control.Reading {
	return control.Reading{
		Sample: device.Sample{
			Celsius: 843.25,
			Time:    time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		},
		Power:    55,
		Setpoint: 900,
		State:    control.StateRunning,
		Params:   tuning.Parameters{Kp: 2, Ki: 0.1, Kd: 10, TuningMode: true},
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, &fakeCommander{})
	tr.Reading(testReading())
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.State != "RUNNING" {
		t.Errorf("state: got %q, want RUNNING", sj.Status.State)
	}
	if sj.Status.TemperatureC == nil || *sj.Status.TemperatureC != 843.25 {
		t.Errorf("temperature_c: got %v, want 843.25", sj.Status.TemperatureC)
	}
	if sj.Status.SetpointC != 900 {
		t.Errorf("setpoint_c: got %v, want 900", sj.Status.SetpointC)
	}
	if sj.Status.PowerPct != 55 {
		t.Errorf("power_pct: got %v, want 55", sj.Status.PowerPct)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Tuning.Kp != 2 {
		t.Errorf("tuning.kp: got %v, want 2", sj.Status.Tuning.Kp)
	}
	if sj.Status.Config.TickMs != 1000 {
		t.Errorf("config.tick_ms: got %d, want 1000", sj.Status.Config.TickMs)
	}
}

func TestJSONOmitsTemperatureBeforeFirstSample(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCommander{})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.TemperatureC != nil {
		t.Errorf("temperature_c before first sample: got %v, want omitted", *sj.Status.TemperatureC)
	}
	if sj.Status.State != "IDLE" {
		t.Errorf("state before first tick: got %q, want IDLE", sj.Status.State)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, &fakeCommander{})
	tr.Reading(testReading())

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCommander{})

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, &fakeCommander{})

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestSetpointCommand(t *testing.T) {
	cmd := &fakeCommander{}
	ts, _ := newTestServer(t, cmd)

	resp, err := http.Post(ts.URL+"/setpoint", "text/plain", strings.NewReader("950\n"))
	if err != nil {
		t.Fatalf("POST /setpoint: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if len(cmd.setpoints) != 1 || cmd.setpoints[0] != 950 {
		t.Errorf("setpoints: got %v, want [950]", cmd.setpoints)
	}
}

func TestPowerCommand(t *testing.T) {
	cmd := &fakeCommander{}
	ts, _ := newTestServer(t, cmd)

	resp, err := http.Post(ts.URL+"/power", "text/plain", strings.NewReader("72.5"))
	if err != nil {
		t.Fatalf("POST /power: %v", err)
	}
	resp.Body.Close()

	if len(cmd.powers) != 1 || cmd.powers[0] != 72.5 {
		t.Errorf("powers: got %v, want [72.5]", cmd.powers)
	}
}

func TestShutdownCommand(t *testing.T) {
	cmd := &fakeCommander{}
	ts, _ := newTestServer(t, cmd)

	resp, err := http.Post(ts.URL+"/shutdown", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /shutdown: %v", err)
	}
	resp.Body.Close()

	if cmd.shutdowns != 1 {
		t.Errorf("shutdowns: got %d, want 1", cmd.shutdowns)
	}
}

func TestCommandRejectsGET(t *testing.T) {
	cmd := &fakeCommander{}
	ts, _ := newTestServer(t, cmd)

	for _, path := range []string{"/setpoint", "/power", "/shutdown"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: got %d, want 405", path, resp.StatusCode)
		}
	}
	if len(cmd.setpoints) != 0 || len(cmd.powers) != 0 || cmd.shutdowns != 0 {
		t.Error("GET must not reach the commander")
	}
}

func TestCommandRejectsBadBody(t *testing.T) {
	cmd := &fakeCommander{}
	ts, _ := newTestServer(t, cmd)

	resp, err := http.Post(ts.URL+"/setpoint", "text/plain", strings.NewReader("very hot"))
	if err != nil {
		t.Fatalf("POST /setpoint: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
	if len(cmd.setpoints) != 0 {
		t.Errorf("bad body must not reach the commander, got %v", cmd.setpoints)
	}
}

func TestCommandWithoutCommander(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/power", "text/plain", strings.NewReader("50"))
	if err != nil {
		t.Fatalf("POST /power: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}
