package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/reflex-trigger/internal/status"
	"github.com/sweeney/reflex-trigger/internal/trigger"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	cfg := status.Config{
		Chip:        "gpiochip0",
		DetectPins:  []int{3, 4, 5},
		HitPins:     []int{12, 13, 14},
		LEDPin:      25,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetPhase(status.PhaseRunning)
	tr.Report(trigger.Outcome{Channel: trigger.Detect2, Target: trigger.Hit1, Confirmed: true, At: start.Add(time.Second)})
	tr.Report(trigger.Outcome{Channel: trigger.Detect2, Target: trigger.Hit1})
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

	if sj.Status.Phase != "RUNNING" {
		t.Errorf("Phase: got %q, want RUNNING", sj.Status.Phase)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if len(sj.Status.Channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(sj.Status.Channels))
	}
	d2 := sj.Status.Channels[1]
	if d2.ID != "D2" || d2.Output != "HIT1" {
		t.Errorf("channel 1: got %s->%s, want D2->HIT1", d2.ID, d2.Output)
	}
	if d2.Confirmed != 1 {
		t.Errorf("D2 confirmed: got %d, want 1", d2.Confirmed)
	}
	if d2.Rejected != 1 {
		t.Errorf("D2 rejected: got %d, want 1", d2.Rejected)
	}
	if sj.Status.Config.LEDPin != 25 {
		t.Errorf("Config.LEDPin: got %d, want 25", sj.Status.Config.LEDPin)
	}
	if sj.Status.Config.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Config.Broker: got %q", sj.Status.Config.Broker)
	}
}

func TestJSONStartupPhase(t *testing.T) {
	ts, _ := newTestServer(t)

	sj := getJSON(t, ts.URL+"/index.json")
	if sj.Status.Phase != "STARTUP" {
		t.Errorf("Phase before run: got %q, want STARTUP", sj.Status.Phase)
	}
	for _, c := range sj.Status.Channels {
		if c.Confirmed != 0 || c.LastConfirmed != "" {
			t.Errorf("%s: expected no detections, got %+v", c.ID, c)
		}
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetPhase(status.PhaseRunning)
	tr.Report(trigger.Outcome{Channel: trigger.Detect1, Target: trigger.Hit2, Confirmed: true, At: start})

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

	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{">RUNNING<", "<th>D1</th><td>HIT2</td><td>1</td>", "<th>D2</th><td>HIT1</td>", "2026-01-01T00:00:00.000Z"} {
		if !strings.Contains(body, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestHTMLNeverSeen(t *testing.T) {
	ts, _ := newTestServer(t)

	body := getBody(t, ts.URL+"/")
	if !strings.Contains(body, "never") {
		t.Error("expected 'never' for channels without detections")
	}
	if !strings.Contains(body, ">STARTUP<") {
		t.Error("expected STARTUP phase")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.MQTT.Connected {
		t.Error("expected MQTT disconnected initially")
	}

	tr.Report(trigger.Outcome{Channel: trigger.Detect3, Target: trigger.Hit3, Confirmed: true, At: start})
	tr.SetMQTTConnected(true)
	tr.SetPhase(status.PhaseStopped)

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Phase != "STOPPED" {
		t.Errorf("Phase: got %q, want STOPPED", sj2.Status.Phase)
	}
	if sj2.Status.Channels[2].Confirmed != 1 {
		t.Errorf("D3 confirmed: got %d, want 1", sj2.Status.Channels[2].Confirmed)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := status.NewTracker(start, status.Config{})
	srv := New("127.0.0.1:0", tr)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ln) }()

	sj := getJSON(t, "http://"+ln.Addr().String()+"/index.json")
	if sj.Status.Phase != "STARTUP" {
		t.Errorf("Phase: got %q, want STARTUP", sj.Status.Phase)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: unexpected error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
