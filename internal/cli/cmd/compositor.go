package cmd

import (
	"github.com/matjam/wayper/internal/daemon"
	"github.com/matjam/wayper/internal/wayland"
)

// compositor forwards wayland output events to the daemon.
type compositor struct {
	d *daemon.Daemon
}

var _ wayland.Handler = (*compositor)(nil)

func (c *compositor) OutputAdded(out *wayland.Output) {
	c.d.AddOutput(daemon.OutputInfo{
		Name:      out.Name,
		OutputID:  out.ID,
		SurfaceID: out.SurfaceID(),
		Scale:     out.Scale,
	}, out)
}

func (c *compositor) Configure(out *wayland.Output, width, height int) {
	c.d.Configure(out.Name, width, height, out.Scale)
}

func (c *compositor) Frame(out *wayland.Output) {
	c.d.Frame(out.Name)
}

func (c *compositor) OutputRemoved(out *wayland.Output) {
	c.d.RemoveOutput(out.Name)
}
