package daemon

import (
	"errors"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/config"
	"github.com/matjam/wayper/internal/imagelist"
	"github.com/matjam/wayper/internal/output"
	"github.com/matjam/wayper/internal/socket"
)

// OutputInfo is what the compositor reports about a new output.
type OutputInfo struct {
	Name      string
	OutputID  uint32
	SurfaceID uint32
	Scale     int
}

// AddOutput registers an output and creates its GPU surface. Outputs without a config
// in the active profile are tracked but never drawn.
func (d *Daemon) AddOutput(info OutputInfo, surf Surface) {
	cfg, images := d.outputConfig(d.profile, info.Name)

	st := output.NewState(info.Name, info.OutputID, cfg, images)
	st.SurfaceID = info.SurfaceID
	if info.Scale > 0 {
		st.Scale = info.Scale
	}
	d.outputs.Insert(st)
	d.surfaces[info.Name] = surf

	if err := d.engine.AddOutput(info.Name, surf.SurfaceTarget()); err != nil {
		log.Errorf("output %s: %v", info.Name, err)
		return
	}
	log.Infof("output %s added with %d images", info.Name, len(images))
}

// outputConfig resolves the config and builds the image list of an output. A missing
// config or an empty path yields no images.
func (d *Daemon) outputConfig(profile, name string) (config.Resolved, []string) {
	resolved, ok := d.resolve(profile, name)
	if !ok {
		return resolved, nil
	}
	return resolved, d.buildImages(name, resolved.Path)
}

func (d *Daemon) resolve(profile, name string) (config.Resolved, bool) {
	oc, err := d.cfg.OutputConfig(profile, name)
	if err != nil {
		if errors.Is(err, config.ErrNoOutputConfig) {
			log.Warnf("no config for output %s, it will not be drawn", name)
		} else {
			log.Warnf("output %s: %v", name, err)
		}
		return d.cfg.Resolve(config.OutputConfig{}), false
	}
	return d.cfg.Resolve(oc), true
}

func (d *Daemon) buildImages(name, path string) []string {
	if path == "" {
		return nil
	}
	images, err := imagelist.Build(path)
	if err != nil {
		log.Warnf("output %s: %v", name, err)
		return nil
	}
	if len(images) == 0 {
		log.Warnf("output %s: no images found in %s", name, path)
	}
	return images
}

// Configure handles a configure event. The first one sizes the surface, creates the
// pipeline, draws the first image and starts the switch timer.
func (d *Daemon) Configure(name string, width, height, scale int) {
	entry, ok := d.outputs.Get(output.ByName(name))
	if !ok {
		log.Warnf("configure for unknown output %s", name)
		return
	}
	defer d.recoverOutput(name)

	entry.Lock()
	defer entry.Unlock()
	st := entry.State

	if width <= 0 || height <= 0 {
		log.Debugf("output %s: ignoring empty configure", name)
		return
	}
	if scale < 1 {
		scale = 1
	}

	if st.Timer != nil {
		if st.Width == width && st.Height == height && st.Scale == scale {
			return
		}
		st.Width, st.Height, st.Scale = width, height, scale
		pw, ph := st.PixelSize()
		if _, err := d.engine.ConfigureSurface(name, pw, ph); err != nil {
			log.Errorf("output %s: %v", name, err)
			return
		}
		log.Infof("output %s resized to %dx%d", name, pw, ph)
		d.redraw(st)
		return
	}

	st.Width, st.Height, st.Scale = width, height, scale
	pw, ph := st.PixelSize()
	format, err := d.engine.ConfigureSurface(name, pw, ph)
	if err != nil {
		log.Errorf("output %s: %v", name, err)
		return
	}
	if err := d.engine.InitPipeline(format); err != nil {
		log.Errorf("output %s: %v", name, err)
		return
	}
	log.Debugf("output %s configured at %dx%d (scale %d)", name, pw, ph, scale)

	if current, ok := st.Current(); ok {
		if err := d.engine.RenderToOutput(name, current); err != nil {
			log.Errorf("output %s: failed to render %s: %v", name, current, err)
		} else {
			st.LastRender = d.now()
		}
		if next, ok := st.PeekNext(); ok {
			d.engine.RequestTextureLoad(name, next)
		}
	}

	d.requestFrame(name)

	st.Timer = output.NewTimer(st.Config.Duration, d.timerEvents, name)
	st.Timer.Ping()
}

// redraw shows the current image again after a resize.
func (d *Daemon) redraw(st *output.State) {
	if !st.Visible {
		delete(d.blanked, st.Name)
		d.requestFrame(st.Name)
		return
	}
	if current, ok := st.Current(); ok {
		if err := d.engine.RenderToOutput(st.Name, current); err != nil {
			log.Errorf("output %s: failed to render %s: %v", st.Name, current, err)
		}
	}
	d.requestFrame(st.Name)
}

// RemoveOutput drops an output and releases its surface.
func (d *Daemon) RemoveOutput(name string) {
	entry, ok := d.outputs.Remove(output.ByName(name))
	if !ok {
		return
	}

	entry.Lock()
	if entry.State.Timer != nil {
		entry.State.Timer.Stop()
	}
	entry.Unlock()

	d.engine.RemoveOutput(name)
	delete(d.surfaces, name)
	delete(d.blanked, name)
	log.Infof("output %s removed", name)
}

func (d *Daemon) handleTimer(ev output.Event) {
	entry, ok := d.outputs.Get(output.ByName(ev.Output))
	if !ok {
		return
	}

	entry.Lock()
	st := entry.State
	// hidden outputs do not advance
	if st.Visible {
		st.ShouldNext = true
	}
	entry.Unlock()

	log.Debug("switch requested", "output", ev.Output, "source", ev.Source)
	d.requestFrame(ev.Output)
}

func (d *Daemon) requestFrame(name string) {
	if surf, ok := d.surfaces[name]; ok {
		surf.RequestFrame()
		surf.Commit()
	}
}

// recoverOutput keeps a panic in one output's handler from taking down the others.
func (d *Daemon) recoverOutput(name string) {
	if r := recover(); r != nil {
		log.Errorf("output %s: recovered from panic: %v", name, r)
	}
}

// wallpapers lists the current image of every output that has one.
func (d *Daemon) wallpapers() []socket.OutputWallpaper {
	var list []socket.OutputWallpaper
	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()
		if current, ok := e.State.Current(); ok {
			list = append(list, socket.OutputWallpaper{OutputName: e.State.Name, Wallpaper: current})
		}
	})
	return list
}

func displayName(path string) string {
	return filepath.Base(path)
}
