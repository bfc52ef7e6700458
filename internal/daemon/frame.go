package daemon

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/output"
	"github.com/matjam/wayper/internal/render"
	"github.com/matjam/wayper/internal/transition"
)

// Frame handles a frame callback: it advances a running transition, starts a switch
// when one was requested, and re-arms the callback.
func (d *Daemon) Frame(name string) {
	d.engine.ProcessLoadedTextures()

	entry, ok := d.outputs.Get(output.ByName(name))
	if !ok {
		return
	}
	defer d.recoverOutput(name)

	entry.Lock()
	defer entry.Unlock()
	st := entry.State

	// not configured yet
	if st.Timer == nil {
		return
	}

	if !st.Visible {
		d.frameHidden(st)
		return
	}

	switch {
	case st.Transition != nil:
		d.frameTransition(st)
	case st.ShouldNext:
		d.frameSwitch(st)
	default:
		d.requestFrame(name)
	}
}

func (d *Daemon) frameHidden(st *output.State) {
	st.Transition = nil
	if d.blanked[st.Name] {
		return
	}

	if err := d.engine.RenderBlack(st.Name); err != nil {
		d.renderFailed(st.Name, "black", err)
		if render.IsNotReady(err) {
			d.requestFrame(st.Name)
		}
		return
	}
	d.blanked[st.Name] = true
}

func (d *Daemon) frameTransition(st *output.State) {
	tr := st.Transition
	tr.Start()

	if !tr.ShouldRenderFrame() {
		d.requestFrame(st.Name)
		return
	}

	current, ok := st.Current()
	if !ok {
		st.Transition = nil
		return
	}

	var previous *string
	if prev, ok := st.Previous(); ok {
		previous = &prev
	}

	progress := tr.Eased()
	if err := d.engine.RenderFrame(st.Name, previous, current, progress, tr.Kind, tr.Vec2()); err != nil {
		d.renderFailed(st.Name, current, err)
		if render.IsNotReady(err) {
			d.requestFrame(st.Name)
			return
		}
		// the last good frame stays on screen until the next switch
		st.Transition = nil
		st.FirstConfigure = false
		return
	}
	st.LastRender = d.now()
	log.Debug("transition frame", "output", st.Name, "progress", progress, "elapsed", tr.Elapsed())

	if tr.IsComplete() {
		log.Infof("%s showing [%d] %s", st.Name, st.Index(), displayName(current))
		st.Transition = nil
		d.switched(st)
		st.FirstConfigure = false
	}
	d.requestFrame(st.Name)
}

func (d *Daemon) frameSwitch(st *output.State) {
	st.ShouldNext = false

	current, ok := st.Next()
	if !ok {
		return
	}

	if st.Config.TransitionsEnabled {
		spec := st.Config.Transition
		kind := spec.PickKind()
		st.Transition = transition.New(kind, int(spec.Duration.Milliseconds()), spec.FPS, spec.Direction, spec.Easing, d.now)
		log.Debugf("%s starting %s transition to %s", st.Name, kind, displayName(current))
	} else {
		if err := d.engine.RenderToOutput(st.Name, current); err != nil {
			d.renderFailed(st.Name, current, err)
		} else {
			st.LastRender = d.now()
			log.Infof("%s showing [%d] %s", st.Name, st.Index(), displayName(current))
			d.switched(st)
			d.runCommand(st, current)
		}
		st.FirstConfigure = false
	}

	if next, ok := st.PeekNext(); ok {
		d.engine.RequestTextureLoad(st.Name, next)
	}
	d.requestFrame(st.Name)
}

// switched counts a finished switch and logs the metrics every MetricsEvery switches.
func (d *Daemon) switched(st *output.State) {
	st.FrameCount++
	if st.FrameCount%d.opts.MetricsEvery == 0 {
		d.engine.LogMetrics()
	}
}

func (d *Daemon) runCommand(st *output.State, image string) {
	if st.Config.RunCommand == "" {
		return
	}
	if err := d.runner.Run(context.Background(), st.Name, st.Config.RunCommand, image); err != nil {
		log.Errorf("output %s: run_command: %v", st.Name, err)
	}
}

func (d *Daemon) renderFailed(name, what string, err error) {
	if render.IsNotReady(err) {
		log.Debugf("output %s: skipping frame: %v", name, err)
		return
	}
	log.Errorf("output %s: failed to render %s: %v", name, what, err)
}
