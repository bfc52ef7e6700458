package runcmd

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"notify-send {image}", []string{"notify-send", "/w/a b.png"}},
		{`wal -i {image} -n`, []string{"wal", "-i", "/w/a b.png", "-n"}},
		{`echo "{image}"`, []string{"echo", "/w/a b.png"}},
		{"echo file={image}", []string{"echo", "file={image}"}},
		{`sh -c 'echo hi'`, []string{"sh", "-c", "echo hi"}},
	}

	for _, tt := range tests {
		got, err := Split(tt.command, "/w/a b.png")
		if err != nil {
			t.Errorf("Split(%q): %v", tt.command, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestSplitErrors(t *testing.T) {
	if _, err := Split("   ", "x"); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("blank command: err = %v", err)
	}
	if _, err := Split(`echo "unterminated`, "x"); err == nil {
		t.Error("unterminated quote should fail")
	}
}

func TestRunnerRunsInBackground(t *testing.T) {
	var (
		mu   sync.Mutex
		seen [][]string
	)
	r := NewRunnerWith(func(_ context.Context, args []string) Result {
		mu.Lock()
		seen = append(seen, args)
		mu.Unlock()
		return Result{Args: args, Stdout: "ok"}
	})

	if err := r.Run(context.Background(), "eDP-1", "notify-send {image}", "/w/a.png"); err != nil {
		t.Fatal(err)
	}
	r.Wait()

	if len(seen) != 1 || !reflect.DeepEqual(seen[0], []string{"notify-send", "/w/a.png"}) {
		t.Fatalf("executed %q", seen)
	}
}

func TestRunnerRejectsBadCommand(t *testing.T) {
	called := false
	r := NewRunnerWith(func(_ context.Context, args []string) Result {
		called = true
		return Result{Args: args}
	})

	if err := r.Run(context.Background(), "eDP-1", "", "/w/a.png"); err == nil {
		t.Fatal("expected an error")
	}
	r.Wait()
	if called {
		t.Fatal("nothing should run")
	}
}

func TestExecCommand(t *testing.T) {
	res := execCommand(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	if res.Err != nil {
		t.Skipf("sh unavailable: %v", res.Err)
	}
	if res.Stdout != "out" || res.Stderr != "err" || res.ExitCode != 3 {
		t.Fatalf("result = %+v", res)
	}

	res = execCommand(context.Background(), []string{"/nonexistent/wayper-hook"})
	if res.Err == nil || res.ExitCode != -1 {
		t.Fatalf("missing binary result = %+v", res)
	}
}
