// Package wayland is the compositor connection: it binds outputs, gives each one a
// background layer surface and forwards configure, frame and removal events to a Handler.
// Every call except Ready must be made from the goroutine that called Connect.
package wayland

/*
#cgo LDFLAGS: -lwayland-client
#include "glue.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/matjam/wayper/internal/gpu"
)

const namespace = "wayper"

var ErrNoLayerShell = errors.New("compositor does not support wlr-layer-shell")

// Handler receives output lifecycle events. Callbacks run inside Dispatch.
type Handler interface {
	OutputAdded(out *Output)
	Configure(out *Output, width, height int)
	Frame(out *Output)
	OutputRemoved(out *Output)
}

type Display struct {
	display    *C.struct_wl_display
	registry   *C.struct_wl_registry
	compositor *C.struct_wl_compositor
	layerShell *C.struct_zwlr_layer_shell_v1
	handle     cgo.Handle
	handler    Handler

	// buffer scale needs wl_compositor v3
	compositorVersion int

	// bound is set once the initial roundtrips finished, outputs seen before that are
	// announced by Connect.
	bound   bool
	outputs map[uint32]*Output
	retired []*Output

	fd    int32
	ready chan struct{}
	rearm chan struct{}
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// Output is one wl_output together with the layer surface wayper draws on.
type Output struct {
	ID          uint32
	Name        string
	Description string
	Scale       int

	display *Display
	output  *C.struct_wl_output
	surface *C.struct_wl_surface
	layer   *C.struct_zwlr_layer_surface_v1
	handle  cgo.Handle

	announced  bool
	frameArmed bool
	width      int
	height     int

	// gone outputs keep their handle until Close, events already queued for them
	// are dropped
	gone bool
}

func Connect(h Handler) (*Display, error) {
	dpy := C.wl_display_connect(nil)
	if dpy == nil {
		return nil, fmt.Errorf("failed to connect to Wayland display")
	}

	d := &Display{
		display: dpy,
		handler: h,
		outputs: make(map[uint32]*Output),
		ready:   make(chan struct{}, 1),
		rearm:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	d.handle = cgo.NewHandle(d)

	d.registry = C.wl_display_get_registry(dpy)
	if d.registry == nil {
		d.disconnect()
		return nil, fmt.Errorf("failed to get Wayland registry")
	}
	C.wl_registry_add_listener(d.registry, C.get_registry_listener(), unsafe.Pointer(uintptr(d.handle)))

	// globals, then the events of the outputs bound by the first pass
	C.wl_display_roundtrip(dpy)
	C.wl_display_roundtrip(dpy)

	if d.compositor == nil {
		d.disconnect()
		return nil, fmt.Errorf("compositor did not advertise wl_compositor")
	}
	if d.layerShell == nil {
		d.disconnect()
		return nil, ErrNoLayerShell
	}

	d.bound = true
	for _, out := range d.outputs {
		d.announce(out)
	}
	if err := d.Flush(); err != nil {
		d.disconnect()
		return nil, err
	}

	d.fd = int32(C.wl_display_get_fd(dpy))
	d.wg.Add(1)
	go d.poll()

	log.Debugf("connected to wayland display with %d outputs", len(d.outputs))
	return d, nil
}

// Ready fires when the display socket has data. Call Dispatch after every receive.
func (d *Display) Ready() <-chan struct{} {
	return d.ready
}

// Dispatch reads and handles pending events, then flushes outgoing requests.
func (d *Display) Dispatch() error {
	defer func() {
		select {
		case d.rearm <- struct{}{}:
		default:
		}
	}()

	if C.wl_display_dispatch(d.display) < 0 {
		return fmt.Errorf("wayland dispatch: %w", unix.Errno(C.wl_display_get_error(d.display)))
	}
	return d.Flush()
}

func (d *Display) Flush() error {
	ret, err := C.wl_display_flush(d.display)
	if ret < 0 && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("wayland flush: %w", err)
	}
	return nil
}

func (d *Display) poll() {
	defer d.wg.Done()

	fds := []unix.PollFd{{Fd: d.fd, Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 250)
		select {
		case <-d.stop:
			return
		default:
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Errorf("poll wayland socket: %v", err)
		} else if n == 0 {
			continue
		}

		select {
		case d.ready <- struct{}{}:
		case <-d.stop:
			return
		}
		select {
		case <-d.rearm:
		case <-d.stop:
			return
		}
	}
}

// Outputs returns the outputs that have a layer surface.
func (d *Display) Outputs() []*Output {
	outs := make([]*Output, 0, len(d.outputs))
	for _, out := range d.outputs {
		if out.announced {
			outs = append(outs, out)
		}
	}
	return outs
}

func (d *Display) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()

		for id, out := range d.outputs {
			out.destroy()
			out.handle.Delete()
			delete(d.outputs, id)
		}
		d.disconnect()
		for _, out := range d.retired {
			out.handle.Delete()
		}
		d.retired = nil
	})
}

func (d *Display) disconnect() {
	if d.layerShell != nil {
		C.zwlr_layer_shell_v1_release(d.layerShell)
		d.layerShell = nil
	}
	if d.compositor != nil {
		C.wl_compositor_destroy(d.compositor)
		d.compositor = nil
	}
	if d.registry != nil {
		C.wl_registry_destroy(d.registry)
		d.registry = nil
	}
	if d.display != nil {
		C.wl_display_disconnect(d.display)
		d.display = nil
	}
	if d.handle != 0 {
		d.handle.Delete()
		d.handle = 0
	}
}

// announce creates the background layer surface for out and hands it to the handler.
func (d *Display) announce(out *Output) {
	if out.announced || !d.bound {
		return
	}
	if out.Name == "" {
		out.Name = fmt.Sprintf("output-%d", out.ID)
	}

	out.surface = C.wl_compositor_create_surface(d.compositor)
	if out.surface == nil {
		log.Errorf("failed to create surface for output %s", out.Name)
		return
	}

	ns := C.CString(namespace)
	defer C.free(unsafe.Pointer(ns))

	out.layer = C.zwlr_layer_shell_v1_get_layer_surface(d.layerShell, out.surface, out.output,
		C.uint32_t(C.ZWLR_LAYER_SHELL_V1_LAYER_BACKGROUND), ns)
	if out.layer == nil {
		log.Errorf("failed to create layer surface for output %s", out.Name)
		C.wl_surface_destroy(out.surface)
		out.surface = nil
		return
	}
	C.zwlr_layer_surface_v1_add_listener(out.layer, C.get_layer_surface_listener(), unsafe.Pointer(uintptr(out.handle)))

	C.zwlr_layer_surface_v1_set_anchor(out.layer,
		C.ZWLR_LAYER_SURFACE_V1_ANCHOR_TOP|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_BOTTOM|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_LEFT|
			C.ZWLR_LAYER_SURFACE_V1_ANCHOR_RIGHT)
	C.zwlr_layer_surface_v1_set_exclusive_zone(out.layer, -1)
	C.zwlr_layer_surface_v1_set_size(out.layer, 0, 0)
	C.zwlr_layer_surface_v1_set_keyboard_interactivity(out.layer, C.uint32_t(C.ZWLR_LAYER_SURFACE_V1_KEYBOARD_INTERACTIVITY_NONE))
	C.zwlr_layer_surface_v1_set_margin(out.layer, 0, 0, 0, 0)

	if out.Scale <= 0 {
		out.Scale = 1
	}
	if d.compositorVersion >= 3 {
		C.wl_surface_set_buffer_scale(out.surface, C.int32_t(out.Scale))
	}
	C.wl_surface_commit(out.surface)

	out.announced = true
	log.Debugf("created layer surface for output %s (id=%d)", out.Name, out.ID)
	d.handler.OutputAdded(out)
}

func (d *Display) remove(out *Output) {
	if out.announced {
		d.handler.OutputRemoved(out)
	}
	out.destroy()
	delete(d.outputs, out.ID)
	d.retired = append(d.retired, out)
}

// SurfaceID is the protocol id of the output's wl_surface, 0 before it exists.
func (o *Output) SurfaceID() uint32 {
	if o.surface == nil {
		return 0
	}
	return uint32(C.wl_proxy_get_id((*C.struct_wl_proxy)(unsafe.Pointer(o.surface))))
}

func (o *Output) SurfaceTarget() gpu.SurfaceTarget {
	return gpu.SurfaceTarget{
		Display: unsafe.Pointer(o.display.display),
		Surface: unsafe.Pointer(o.surface),
	}
}

// RequestFrame asks for a frame callback. It only takes effect on the next commit and
// is a no-op while one is already pending.
func (o *Output) RequestFrame() {
	if o.surface == nil || o.frameArmed {
		return
	}
	cb := C.wl_surface_frame(o.surface)
	C.wl_callback_add_listener(cb, C.get_frame_listener(), unsafe.Pointer(uintptr(o.handle)))
	o.frameArmed = true
}

func (o *Output) Commit() {
	if o.surface != nil {
		C.wl_surface_commit(o.surface)
	}
}

func (o *Output) destroy() {
	if o.layer != nil {
		C.zwlr_layer_surface_v1_destroy(o.layer)
		o.layer = nil
	}
	if o.surface != nil {
		C.wl_surface_destroy(o.surface)
		o.surface = nil
	}
	if o.output != nil {
		if C.wl_output_get_version(o.output) >= 3 {
			C.wl_output_release(o.output)
		} else {
			C.wl_output_destroy(o.output)
		}
		o.output = nil
	}
	o.announced = false
	o.gone = true
}
