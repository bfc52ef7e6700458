package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matjam/wayper/internal/metrics"
	"github.com/matjam/wayper/internal/socket"
)

type fakeDaemon struct {
	down bool
	last socket.Command
}

func (d *fakeDaemon) Status(context.Context) (Status, error) {
	if d.down {
		return Status{}, errors.New("daemon is shutting down")
	}
	return Status{
		ConfigFile: "/home/u/.config/wayper/config.toml",
		Profile:    "default",
		Socket:     socket.DefaultPath,
		Wallpapers: []socket.OutputWallpaper{{OutputName: "eDP-1", Wallpaper: "/w/a.png"}},
	}, nil
}

func (d *fakeDaemon) Metrics(context.Context) (metrics.Snapshot, error) {
	return metrics.Snapshot{TotalFramesRendered: 3, TotalTexturesLoaded: 2}, nil
}

func (d *fakeDaemon) Dispatch(_ context.Context, cmd socket.Command) ([]socket.Output, error) {
	d.last = cmd
	if cmd.Kind == socket.CmdPing {
		return []socket.Output{socket.Message("pong")}, nil
	}
	return nil, nil
}

func newTestServer(t *testing.T, d Daemon) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "http.sock")
	srv, err := NewServer(path, d)
	if err != nil {
		t.Fatal(err)
	}
	return srv, path
}

func TestStatusHandler(t *testing.T) {
	srv, path := newTestServer(t, &fakeDaemon{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var st StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Status != "ok" || st.Profile != "default" || st.HTTPSocket != path || len(st.Wallpapers) != 1 {
		t.Fatalf("status = %+v", st)
	}
}

func TestStatusUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDaemon{down: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d", rec.Code)
	}
}

func TestCommandHandler(t *testing.T) {
	d := &fakeDaemon{}
	srv, _ := newTestServer(t, d)

	tests := []struct {
		body string
		code int
		want string
	}{
		{`"Ping"`, http.StatusOK, `{"status":"ok","command":"ping","outputs":[{"Message":"pong"}]}`},
		{`{"Toggle":{"output_name":"eDP-1"}}`, http.StatusOK, `{"status":"ok","command":"toggle","outputs":[]}`},
		{`"Reboot"`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != tt.code {
			t.Errorf("POST %s = %d, want %d", tt.body, rec.Code, tt.code)
			continue
		}
		if tt.want != "" && strings.TrimSpace(rec.Body.String()) != tt.want {
			t.Errorf("POST %s body = %s, want %s", tt.body, rec.Body.String(), tt.want)
		}
	}

	if d.last.Kind != socket.CmdToggle || d.last.OutputName == nil || *d.last.OutputName != "eDP-1" {
		t.Fatalf("dispatched %+v", d.last)
	}
}

func TestClientOverSocket(t *testing.T) {
	srv, path := newTestServer(t, &fakeDaemon{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return")
		}
	}()

	st, raw, err := GetStatus(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Message != "wayper is running" || len(raw) == 0 {
		t.Fatalf("status = %+v", st)
	}

	m, err := GetMetrics(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalFramesRendered != 3 {
		t.Fatalf("metrics = %+v", m)
	}

	res, err := SendCommand(path, socket.Command{Kind: socket.CmdPing})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Outputs) != 1 || res.Outputs[0].Message != "pong" {
		t.Fatalf("command response = %+v", res)
	}
}
