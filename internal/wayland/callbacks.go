package wayland

/*
#include "glue.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/charmbracelet/log"
)

const (
	wantCompositor = 4
	// name and description events arrive from v4
	wantOutput = 4
)

func displayFrom(handle C.uintptr_t) *Display {
	d, ok := cgo.Handle(uintptr(handle)).Value().(*Display)
	if !ok {
		log.Error("wayland callback without a display")
		return nil
	}
	return d
}

func outputFrom(handle C.uintptr_t) *Output {
	out, ok := cgo.Handle(uintptr(handle)).Value().(*Output)
	if !ok || out.gone {
		return nil
	}
	return out
}

//export goRegistryGlobal
func goRegistryGlobal(handle C.uintptr_t, registry *C.struct_wl_registry, name C.uint32_t, iface *C.char, version C.uint32_t) {
	d := displayFrom(handle)
	if d == nil {
		return
	}

	switch C.GoString(iface) {
	case "zwlr_layer_shell_v1":
		d.layerShell = (*C.struct_zwlr_layer_shell_v1)(C.wl_registry_bind(registry, name, &C.zwlr_layer_shell_v1_interface, 1))
		log.Debug("bound zwlr_layer_shell_v1")
	case "wl_compositor":
		v := min(wantCompositor, uint32(version))
		d.compositor = (*C.struct_wl_compositor)(C.wl_registry_bind(registry, name, &C.wl_compositor_interface, C.uint32_t(v)))
		d.compositorVersion = int(v)
		log.Debugf("bound wl_compositor v%d", v)
	case "wl_output":
		id := uint32(name)
		if _, exists := d.outputs[id]; exists {
			return
		}
		v := min(wantOutput, uint32(version))
		wlOut := (*C.struct_wl_output)(C.wl_registry_bind(registry, name, &C.wl_output_interface, C.uint32_t(v)))
		out := &Output{ID: id, Scale: 1, display: d, output: wlOut}
		out.handle = cgo.NewHandle(out)
		d.outputs[id] = out
		C.wl_output_add_listener(wlOut, C.get_output_listener(), unsafe.Pointer(uintptr(out.handle)))
		log.Debugf("bound wl_output id=%d v%d", id, v)
	}
}

//export goRegistryGlobalRemove
func goRegistryGlobalRemove(handle C.uintptr_t, name C.uint32_t) {
	d := displayFrom(handle)
	if d == nil {
		return
	}
	if out, ok := d.outputs[uint32(name)]; ok {
		log.Debugf("output %s (id=%d) removed", out.Name, out.ID)
		d.remove(out)
	}
}

//export goOutputName
func goOutputName(handle C.uintptr_t, name *C.char) {
	if out := outputFrom(handle); out != nil && !out.announced {
		out.Name = C.GoString(name)
	}
}

//export goOutputDescription
func goOutputDescription(handle C.uintptr_t, desc *C.char) {
	if out := outputFrom(handle); out != nil {
		out.Description = C.GoString(desc)
	}
}

//export goOutputScale
func goOutputScale(handle C.uintptr_t, factor C.int32_t) {
	out := outputFrom(handle)
	if out == nil {
		return
	}
	scale := max(int(factor), 1)
	if scale == out.Scale {
		return
	}
	out.Scale = scale
	if out.surface != nil && out.display.compositorVersion >= 3 {
		C.wl_surface_set_buffer_scale(out.surface, C.int32_t(scale))
	}
	// resize the swapchain for the new buffer size
	if out.announced && out.width > 0 && out.height > 0 {
		out.display.handler.Configure(out, out.width, out.height)
	}
}

//export goOutputDone
func goOutputDone(handle C.uintptr_t) {
	if out := outputFrom(handle); out != nil {
		out.display.announce(out)
	}
}

//export goLayerSurfaceConfigure
func goLayerSurfaceConfigure(handle C.uintptr_t, width, height C.uint32_t) {
	out := outputFrom(handle)
	if out == nil {
		return
	}
	log.Debugf("layer surface for %s configured: %dx%d", out.Name, width, height)
	out.width = int(width)
	out.height = int(height)
	out.display.handler.Configure(out, out.width, out.height)
}

//export goLayerSurfaceClosed
func goLayerSurfaceClosed(handle C.uintptr_t) {
	out := outputFrom(handle)
	if out == nil {
		return
	}
	log.Debugf("layer surface for %s closed", out.Name)
	out.display.remove(out)
}

//export goFrameDone
func goFrameDone(handle C.uintptr_t) {
	out := outputFrom(handle)
	if out == nil {
		return
	}
	out.frameArmed = false
	out.display.handler.Frame(out)
}
