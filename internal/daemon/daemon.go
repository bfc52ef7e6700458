// Package daemon is the event loop. One goroutine owns the render engine and every
// output; compositor events, timer ticks, socket commands and config reloads are all
// handled on it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matjam/wayper/internal/config"
	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/imagedecode"
	"github.com/matjam/wayper/internal/ipc"
	"github.com/matjam/wayper/internal/jobserver"
	"github.com/matjam/wayper/internal/metrics"
	"github.com/matjam/wayper/internal/output"
	"github.com/matjam/wayper/internal/render"
	"github.com/matjam/wayper/internal/runcmd"
	"github.com/matjam/wayper/internal/socket"
)

const (
	LoaderWorker    = "worker"
	LoaderJobServer = "jobserver"

	DefaultMetricsEvery = 100
)

var ErrStopped = errors.New("daemon is not running")

type Options struct {
	SocketPath string
	// HTTPSocket is the status API socket, empty disables it.
	HTTPSocket string
	// TextureBudget caps resident texture bytes, 0 is unbounded.
	TextureBudget int64
	// MetricsEvery logs the GPU metrics every N completed transitions or static switches.
	MetricsEvery uint64
}

// Loader is a render loader that owns background goroutines.
type Loader interface {
	render.Loader
	io.Closer
}

// NewLoader starts the decode backend named by kind.
func NewLoader(ctx context.Context, kind string, workers, jobCache int) (Loader, error) {
	switch kind {
	case "", LoaderWorker:
		pool := imagedecode.NewPool(workers, 16)
		pool.Start(ctx)
		return pool, nil
	case LoaderJobServer:
		srv := jobserver.New(jobCache)
		srv.Start()
		return srv, nil
	default:
		return nil, fmt.Errorf("unknown loader %q, expected %q or %q", kind, LoaderWorker, LoaderJobServer)
	}
}

// Display is the compositor connection as the loop sees it.
type Display interface {
	Ready() <-chan struct{}
	Dispatch() error
	Flush() error
}

// Surface is the compositor side of one output.
type Surface interface {
	RequestFrame()
	Commit()
	SurfaceTarget() gpu.SurfaceTarget
}

type Daemon struct {
	opts    Options
	cfg     *config.Config
	profile string

	engine  *render.Engine
	loader  Loader
	outputs *output.Map
	// surfaces and blanked are keyed by output name and only touched on the loop
	surfaces map[string]Surface
	blanked  map[string]bool
	runner   *runcmd.Runner

	timerEvents chan output.Event
	requests    chan socket.Request
	reloads     chan struct{}
	calls       chan func()
	// stopping is closed when the loop returns
	stopping chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

func New(cfg *config.Config, device gpu.Device, loader Loader, opts Options) *Daemon {
	if opts.MetricsEvery == 0 {
		opts.MetricsEvery = DefaultMetricsEvery
	}

	return &Daemon{
		opts:        opts,
		cfg:         cfg,
		engine:      render.NewEngine(device, loader, render.Options{TextureBudget: opts.TextureBudget}),
		loader:      loader,
		outputs:     output.NewMap(),
		surfaces:    make(map[string]Surface),
		blanked:     make(map[string]bool),
		runner:      runcmd.NewRunner(),
		timerEvents: make(chan output.Event, 16),
		requests:    make(chan socket.Request),
		reloads:     make(chan struct{}, 1),
		calls:       make(chan func()),
		stopping:    make(chan struct{}),
		now:         time.Now,
	}
}

// Requests is where socket servers deliver commands.
func (d *Daemon) Requests() chan<- socket.Request {
	return d.requests
}

// RequestReload asks the loop to reread the config file. Requests made while one is
// pending are merged.
func (d *Daemon) RequestReload() {
	select {
	case d.reloads <- struct{}{}:
	default:
	}
}

// Run serves the control socket and the HTTP API and runs the event loop on the calling
// goroutine until ctx is done or the display fails. Compositor and GPU calls stay on
// that goroutine, so the caller should hold the OS thread.
func (d *Daemon) Run(ctx context.Context, display Display) error {
	defer d.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if d.opts.SocketPath != "" {
		srv, err := socket.Listen(d.opts.SocketPath, d.requests)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(gctx) })
		log.Infof("listening on %s", srv.Path())
	}

	if d.opts.HTTPSocket != "" {
		api, err := ipc.NewServer(d.opts.HTTPSocket, d)
		if err != nil {
			return err
		}
		g.Go(func() error { return api.Serve(gctx) })
	}

	loopErr := d.loop(gctx, display)
	close(d.stopping)
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("server stopped: %v", err)
	}
	return loopErr
}

func (d *Daemon) loop(ctx context.Context, display Display) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-display.Ready():
			if err := display.Dispatch(); err != nil {
				return err
			}
		case ev := <-d.timerEvents:
			d.handleTimer(ev)
		case req := <-d.requests:
			d.serve(req)
		case <-d.reloads:
			d.Reload()
		case fn := <-d.calls:
			fn()
		}

		if err := display.Flush(); err != nil {
			return err
		}
	}
}

// serve answers a command. Replies are delivered off the loop so a slow client cannot
// stall rendering.
func (d *Daemon) serve(req socket.Request) {
	replies := d.HandleCommand(req.Command)
	go func() {
		for _, r := range replies {
			req.Reply <- r
		}
		close(req.Reply)
	}()
}

// call runs fn on the loop and waits for it.
func (d *Daemon) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case d.calls <- wrapped:
	case <-d.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the timers and releases the engine and the loader. Run calls it on the
// way out; it is safe to call more than once.
func (d *Daemon) Close() {
	d.stopOnce.Do(d.release)
}

func (d *Daemon) release() {
	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()
		if e.State.Timer != nil {
			e.State.Timer.Stop()
		}
	})
	d.runner.Wait()
	d.engine.Close()
	if err := d.loader.Close(); err != nil {
		log.Warnf("loader shutdown: %v", err)
	}
	log.Info("daemon stopped")
}

// Status implements ipc.Daemon.
func (d *Daemon) Status(ctx context.Context) (ipc.Status, error) {
	var st ipc.Status
	err := d.call(ctx, func() {
		st = ipc.Status{
			ConfigFile: d.cfg.Path,
			Profile:    d.activeProfile(),
			Socket:     d.opts.SocketPath,
			Wallpapers: d.wallpapers(),
		}
	})
	return st, err
}

// Metrics implements ipc.Daemon.
func (d *Daemon) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := d.call(ctx, func() {
		snap = d.engine.Metrics()
	})
	return snap, err
}

// Dispatch implements ipc.Daemon.
func (d *Daemon) Dispatch(ctx context.Context, cmd socket.Command) ([]socket.Output, error) {
	select {
	case <-d.stopping:
		return nil, ErrStopped
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stopping:
			cancel()
		case <-ctx.Done():
		}
	}()
	return socket.Collect(ctx, d.requests, cmd)
}

func (d *Daemon) activeProfile() string {
	if d.profile == "" {
		return d.cfg.DefaultProfile
	}
	return d.profile
}
