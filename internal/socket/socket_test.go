package socket

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/matjam/wayper/internal/metrics"
)

func strPtr(s string) *string {
	return &s
}

func TestCommandWire(t *testing.T) {
	tests := []struct {
		cmd  Command
		wire string
	}{
		{Command{Kind: CmdPing}, `"Ping"`},
		{Command{Kind: CmdCurrent}, `{"Current":{"output_name":null}}`},
		{Command{Kind: CmdCurrent, OutputName: strPtr("eDP-1")}, `{"Current":{"output_name":"eDP-1"}}`},
		{Command{Kind: CmdToggle}, `{"Toggle":{"output_name":null}}`},
		{Command{Kind: CmdHide, OutputName: strPtr("DP-2")}, `{"Hide":{"output_name":"DP-2"}}`},
		{Command{Kind: CmdShow}, `{"Show":{"output_name":null}}`},
		{Command{Kind: CmdChangeProfile, ProfileName: strPtr("work")}, `{"ChangeProfile":{"profile_name":"work"}}`},
		{Command{Kind: CmdChangeProfile}, `{"ChangeProfile":{"profile_name":null}}`},
		{Command{Kind: CmdProfiles}, `"Profiles"`},
		{Command{Kind: CmdGpuMetrics}, `"GpuMetrics"`},
	}

	for _, tt := range tests {
		b, err := json.Marshal(tt.cmd)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.cmd.Kind, err)
		}
		if string(b) != tt.wire {
			t.Errorf("marshal %v = %s, want %s", tt.cmd.Kind, b, tt.wire)
		}

		var got Command
		if err := json.Unmarshal([]byte(tt.wire), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.wire, err)
		}
		if !reflect.DeepEqual(got, tt.cmd) {
			t.Errorf("unmarshal %s = %+v, want %+v", tt.wire, got, tt.cmd)
		}
	}
}

func TestCommandLenientArgs(t *testing.T) {
	var c Command
	if err := json.Unmarshal([]byte(`{"Toggle":{}}`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Kind != CmdToggle || c.OutputName != nil {
		t.Fatalf("got %+v", c)
	}
}

func TestCommandErrors(t *testing.T) {
	for _, wire := range []string{`"Reboot"`, `{"Ping":{}}`, `{"Current":{},"Toggle":{}}`, `42`, `{"Current":"x"}`} {
		var c Command
		if err := json.Unmarshal([]byte(wire), &c); err == nil {
			t.Errorf("unmarshal %s should fail, got %+v", wire, c)
		}
	}
}

func TestCommandString(t *testing.T) {
	tests := map[CommandKind]string{
		CmdPing:          "ping",
		CmdCurrent:       "current",
		CmdChangeProfile: "change-profile",
		CmdGpuMetrics:    "gpu-metrics",
		CmdProfiles:      "profiles",
	}
	for kind, want := range tests {
		if got := (Command{Kind: kind}).String(); got != want {
			t.Errorf("%s.String() = %q, want %q", kind, got, want)
		}
	}
}

func TestOutputWire(t *testing.T) {
	tests := []struct {
		out  Output
		wire string
	}{
		{Message("pong"), `{"Message":"pong"}`},
		{CurrentWallpaper("eDP-1", "/w/a.png"), `{"CurrentWallpaper":{"output_name":"eDP-1","wallpaper":"/w/a.png"}}`},
		{Wallpapers([]OutputWallpaper{{OutputName: "eDP-1", Wallpaper: "/w/a.png"}}), `{"Wallpapers":[{"output_name":"eDP-1","wallpaper":"/w/a.png"}]}`},
		{SingleError(NoCurrentImage("eDP-1")), `{"SingleError":{"NoCurrentImage":{"output":"eDP-1"}}}`},
		{SingleError(UnidentifiedOutput("DP-9")), `{"SingleError":{"UnindentifiedOutput":{"output_name":"DP-9"}}}`},
		{SingleError(Unexpected()), `{"SingleError":"UnexpectedError"}`},
		{SingleError(NoProfile("nope")), `{"SingleError":{"NoProfile":"nope"}}`},
		{SingleError(CommandUnimplemented("hide")), `{"SingleError":{"CommandUnimplemented":{"command":"hide"}}}`},
		{MultipleErrors([]Error{NoCurrentImage("a"), NoCurrentImage("b")}), `{"MultipleErrors":[{"NoCurrentImage":{"output":"a"}},{"NoCurrentImage":{"output":"b"}}]}`},
		{Profiles([]string{"default", "work"}), `{"Profiles":["default","work"]}`},
		{End("ping"), `{"End":"ping"}`},
	}

	for _, tt := range tests {
		b, err := json.Marshal(tt.out)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.out.Kind, err)
		}
		if string(b) != tt.wire {
			t.Errorf("marshal = %s\nwant      %s", b, tt.wire)
		}

		var got Output
		if err := json.Unmarshal([]byte(tt.wire), &got); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.wire, err)
		}
		if !reflect.DeepEqual(got, tt.out) {
			t.Errorf("unmarshal %s = %+v, want %+v", tt.wire, got, tt.out)
		}
	}
}

func TestGpuMetricsWire(t *testing.T) {
	b, err := json.Marshal(GpuMetrics(metrics.Snapshot{}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"GpuMetrics":{"texture_cache_size":0,"texture_cache_hits":0,"texture_cache_misses":0,"bind_group_cache_size":0,"bind_group_cache_hits":0,"bind_group_cache_misses":0,"total_textures_loaded":0,"total_frames_rendered":0}}`
	if string(b) != want {
		t.Fatalf("marshal = %s", b)
	}
}

func TestOutputString(t *testing.T) {
	out := Wallpapers([]OutputWallpaper{
		{OutputName: "eDP-1", Wallpaper: "/w/a.png"},
		{OutputName: "DP-2", Wallpaper: "/w/b.png"},
	})
	if got := out.String(); got != "eDP-1: /w/a.png\nDP-2: /w/b.png" {
		t.Errorf("String() = %q", got)
	}
	if got := SingleError(NoProfile("x")).String(); got != `Profile "x" is not defined.` {
		t.Errorf("String() = %q", got)
	}
	if !SingleError(Unexpected()).IsError() || Message("pong").IsError() {
		t.Error("IsError mismatch")
	}
}

// fakeDaemon answers Ping with pong and Current with two records.
func fakeDaemon(ctx context.Context, requests <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			switch req.Command.Kind {
			case CmdPing:
				req.Reply <- Message("pong")
			case CmdCurrent:
				req.Reply <- CurrentWallpaper("eDP-1", "/w/a.png")
				req.Reply <- SingleError(NoCurrentImage("DP-2"))
			}
			close(req.Reply)
		}
	}
}

func startServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wayper.sock")
	requests := make(chan Request)
	srv, err := Listen(path, requests)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go fakeDaemon(ctx, requests)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return")
		}
	})
	return path, cancel
}

func TestServerRoundTrip(t *testing.T) {
	path, _ := startServer(t)

	c, err := Dial(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	outs, err := c.Send(Command{Kind: CmdPing})
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 1 || outs[0].Message != "pong" {
		t.Fatalf("ping replies = %+v", outs)
	}

	// several commands on one connection
	outs, err = c.Send(Command{Kind: CmdCurrent})
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 || outs[0].Kind != OutCurrentWallpaper || outs[1].Err.Kind != ErrNoCurrentImage {
		t.Fatalf("current replies = %+v", outs)
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	path, _ := startServer(t)

	// a second daemon takes over the path
	srv, err := Listen(path, make(chan Request))
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	srv.Close()
}

func TestServerRejectsGarbage(t *testing.T) {
	path, _ := startServer(t)

	c, err := Dial(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	var out Output
	if err := json.Unmarshal(line, &out); err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutSingleError || out.Err.Kind != ErrUnexpected {
		t.Fatalf("reply = %+v", out)
	}
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Send(filepath.Join(t.TempDir(), "missing.sock"), Command{Kind: CmdPing})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if errors.Is(err, ErrClosedEarly) {
		t.Fatal("dial failure reported as early close")
	}
}

func TestCollect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requests := make(chan Request)
	go fakeDaemon(ctx, requests)

	outs, err := Collect(ctx, requests, Command{Kind: CmdCurrent})
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("Collect() = %+v", outs)
	}

	cancel()
	if _, err := Collect(ctx, make(chan Request), Command{Kind: CmdPing}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
