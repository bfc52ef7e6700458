package daemon

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/output"
	"github.com/matjam/wayper/internal/socket"
)

// HandleCommand answers one control command. The End record is added by the transport.
func (d *Daemon) HandleCommand(cmd socket.Command) []socket.Output {
	log.Debugf("received command %s", cmd)

	switch cmd.Kind {
	case socket.CmdPing:
		return []socket.Output{socket.Message("pong")}
	case socket.CmdCurrent:
		return d.current(cmd.OutputName)
	case socket.CmdToggle:
		return d.visibility(cmd.OutputName, "Toggled visibility for", func(st *output.State) bool {
			return !st.Visible
		})
	case socket.CmdHide:
		return d.visibility(cmd.OutputName, "Hid", func(*output.State) bool { return false })
	case socket.CmdShow:
		return d.visibility(cmd.OutputName, "Showed", func(*output.State) bool { return true })
	case socket.CmdChangeProfile:
		return d.changeProfile(cmd.ProfileName)
	case socket.CmdProfiles:
		return []socket.Output{socket.Profiles(d.cfg.ProfileNames())}
	case socket.CmdGpuMetrics:
		return []socket.Output{socket.GpuMetrics(d.engine.Metrics())}
	default:
		return []socket.Output{socket.SingleError(socket.CommandUnimplemented(cmd.String()))}
	}
}

func (d *Daemon) current(name *string) []socket.Output {
	if name != nil {
		entry, ok := d.outputs.Get(output.ByName(*name))
		if !ok {
			return []socket.Output{socket.SingleError(socket.UnidentifiedOutput(*name))}
		}

		entry.Lock()
		defer entry.Unlock()
		current, ok := entry.State.Current()
		if !ok {
			return []socket.Output{socket.SingleError(socket.NoCurrentImage(*name))}
		}
		return []socket.Output{socket.CurrentWallpaper(*name, current)}
	}

	var (
		list    []socket.OutputWallpaper
		missing []socket.Error
	)
	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()
		if current, ok := e.State.Current(); ok {
			list = append(list, socket.OutputWallpaper{OutputName: e.State.Name, Wallpaper: current})
		} else {
			missing = append(missing, socket.NoCurrentImage(e.State.Name))
		}
	})

	replies := []socket.Output{socket.Wallpapers(list)}
	if len(missing) > 0 {
		replies = append(replies, socket.MultipleErrors(missing))
	}
	return replies
}

// visibility sets the visibility of one output, or of all when name is nil, to the
// value want returns for it.
func (d *Daemon) visibility(name *string, verb string, want func(*output.State) bool) []socket.Output {
	if name != nil {
		entry, ok := d.outputs.Get(output.ByName(*name))
		if !ok {
			return []socket.Output{socket.SingleError(socket.UnidentifiedOutput(*name))}
		}
		entry.Lock()
		d.setVisible(entry.State, want(entry.State))
		entry.Unlock()
		return []socket.Output{socket.Message(fmt.Sprintf("%s output %s", verb, *name))}
	}

	var names []string
	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()
		d.setVisible(e.State, want(e.State))
		names = append(names, e.State.Name)
	})
	return []socket.Output{socket.Message(fmt.Sprintf("%s outputs %s", verb, strings.Join(names, ", ")))}
}

// setVisible hides an output by drawing black on its next frame, or shows it again
// with its current image. A running transition is dropped on hide.
func (d *Daemon) setVisible(st *output.State, visible bool) {
	if st.Visible == visible {
		return
	}
	st.Visible = visible
	log.Infof("output %s is now %s", st.Name, visibleWord(visible))

	if !visible {
		st.Transition = nil
		st.ShouldNext = false
		delete(d.blanked, st.Name)
		d.requestFrame(st.Name)
		return
	}

	delete(d.blanked, st.Name)
	if current, ok := st.Current(); ok && st.Timer != nil {
		if err := d.engine.RenderToOutput(st.Name, current); err != nil {
			d.renderFailed(st.Name, current, err)
		} else {
			st.LastRender = d.now()
		}
	}
	d.requestFrame(st.Name)
}

func visibleWord(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}

// changeProfile switches every output to the named profile, nil or empty meaning the
// default one. The image lists are rebuilt and each output shows its new first image.
func (d *Daemon) changeProfile(name *string) []socket.Output {
	target := d.cfg.DefaultProfile
	if name != nil && *name != "" {
		target = *name
	}

	if !d.cfg.HasProfile(target) {
		return []socket.Output{socket.SingleError(socket.NoProfile(target))}
	}
	if target == d.activeProfile() {
		log.Warnf("profile %s is already active", target)
		return []socket.Output{socket.Message(fmt.Sprintf("Profile %s is already active", target))}
	}

	d.profile = target
	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()

		st := e.State
		resolved, images := d.outputConfig(target, st.Name)
		change := st.UpdateConfig(resolved)
		d.restart(st, images, change.Duration)
	})

	log.Infof("changed profile to %s", target)
	return []socket.Output{socket.Message(fmt.Sprintf("Changed profile to %s", target))}
}

// restart installs a new image list and schedules the switch to its first image.
func (d *Daemon) restart(st *output.State, images []string, durationChanged bool) {
	st.SetImages(images)
	st.FirstConfigure = true
	st.ShouldNext = false

	if st.Timer == nil {
		return
	}
	if durationChanged {
		st.Timer.SetDuration(st.Config.Duration)
	}
	if len(images) > 0 {
		if next, ok := st.PeekNext(); ok {
			d.engine.RequestTextureLoad(st.Name, next)
		}
		st.Timer.Ping()
	}
}

// Reload rereads the config file. Outputs whose path changed get a new image list,
// changed durations restart the timer. A broken file keeps the old config.
func (d *Daemon) Reload() {
	if err := d.cfg.Reload(); err != nil {
		log.Errorf("config reload failed, keeping the previous config: %v", err)
		return
	}

	if d.profile != "" && !d.cfg.HasProfile(d.profile) {
		log.Warnf("profile %s no longer exists, using the default profile", d.profile)
		d.profile = ""
	}

	d.outputs.Each(func(e *output.Entry) {
		e.Lock()
		defer e.Unlock()

		st := e.State
		resolved, _ := d.resolve(d.profile, st.Name)
		change := st.UpdateConfig(resolved)
		switch {
		case change.Path:
			d.restart(st, d.buildImages(st.Name, resolved.Path), change.Duration)
		case change.Duration && st.Timer != nil:
			st.Timer.SetDuration(resolved.Duration)
		}
	})

	log.Infof("config reloaded from %s", d.cfg.Path)
}
