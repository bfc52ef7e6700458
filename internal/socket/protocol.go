// Package socket implements the control socket: newline delimited JSON commands from
// clients and the daemon's replies, each reply list closed by an End record.
package socket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matjam/wayper/internal/metrics"
)

const DefaultPath = "/tmp/wayper/.socket.sock"

var errBadTag = errors.New("expected a string or an object with one key")

// splitTagged separates an externally tagged value into its tag and payload. Unit
// values are bare strings and have no payload.
func splitTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)

	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, errBadTag
	}
	if len(obj) != 1 {
		return "", nil, errBadTag
	}
	for k, v := range obj {
		return k, v, nil
	}
	return "", nil, errBadTag
}

func tagged(tag string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: payload})
}

type CommandKind string

const (
	CmdPing          CommandKind = "Ping"
	CmdCurrent       CommandKind = "Current"
	CmdToggle        CommandKind = "Toggle"
	CmdHide          CommandKind = "Hide"
	CmdShow          CommandKind = "Show"
	CmdChangeProfile CommandKind = "ChangeProfile"
	CmdProfiles      CommandKind = "Profiles"
	CmdGpuMetrics    CommandKind = "GpuMetrics"
)

// Command is one request from a client. OutputName applies to Current, Toggle, Hide
// and Show, ProfileName to ChangeProfile. A nil name means all outputs or the default
// profile.
type Command struct {
	Kind        CommandKind
	OutputName  *string
	ProfileName *string
}

type outputArgs struct {
	OutputName *string `json:"output_name"`
}

type profileArgs struct {
	ProfileName *string `json:"profile_name"`
}

func (c Command) hasOutputArg() bool {
	switch c.Kind {
	case CmdCurrent, CmdToggle, CmdHide, CmdShow:
		return true
	}
	return false
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch {
	case c.hasOutputArg():
		return tagged(string(c.Kind), outputArgs{OutputName: c.OutputName})
	case c.Kind == CmdChangeProfile:
		return tagged(string(c.Kind), profileArgs{ProfileName: c.ProfileName})
	case c.Kind == CmdPing, c.Kind == CmdProfiles, c.Kind == CmdGpuMetrics:
		return json.Marshal(string(c.Kind))
	}
	return nil, fmt.Errorf("unknown command %q", c.Kind)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("command: %w", err)
	}

	cmd := Command{Kind: CommandKind(tag)}
	switch {
	case cmd.hasOutputArg():
		var args outputArgs
		if err := unmarshalArgs(payload, &args); err != nil {
			return fmt.Errorf("command %s: %w", tag, err)
		}
		cmd.OutputName = args.OutputName
	case cmd.Kind == CmdChangeProfile:
		var args profileArgs
		if err := unmarshalArgs(payload, &args); err != nil {
			return fmt.Errorf("command %s: %w", tag, err)
		}
		cmd.ProfileName = args.ProfileName
	case cmd.Kind == CmdPing, cmd.Kind == CmdProfiles, cmd.Kind == CmdGpuMetrics:
		if payload != nil {
			return fmt.Errorf("command %s takes no arguments", tag)
		}
	default:
		return fmt.Errorf("unknown command %q", tag)
	}

	*c = cmd
	return nil
}

// unmarshalArgs accepts a missing payload as all fields unset.
func unmarshalArgs(payload json.RawMessage, v any) error {
	if payload == nil {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// String is the kebab-case command name, as used on the command line and in End.
func (c Command) String() string {
	switch c.Kind {
	case CmdChangeProfile:
		return "change-profile"
	case CmdGpuMetrics:
		return "gpu-metrics"
	}
	return strings.ToLower(string(c.Kind))
}

type ErrorKind string

const (
	ErrNoCurrentImage       ErrorKind = "NoCurrentImage"
	ErrUnidentifiedOutput   ErrorKind = "UnindentifiedOutput"
	ErrUnexpected           ErrorKind = "UnexpectedError"
	ErrNoProfile            ErrorKind = "NoProfile"
	ErrCommandUnimplemented ErrorKind = "CommandUnimplemented"
)

// Error is a protocol level failure reported to the client.
type Error struct {
	Kind    ErrorKind
	Output  string
	Profile string
	Command string
}

func NoCurrentImage(output string) Error {
	return Error{Kind: ErrNoCurrentImage, Output: output}
}

func UnidentifiedOutput(output string) Error {
	return Error{Kind: ErrUnidentifiedOutput, Output: output}
}

func Unexpected() Error {
	return Error{Kind: ErrUnexpected}
}

func NoProfile(profile string) Error {
	return Error{Kind: ErrNoProfile, Profile: profile}
}

func CommandUnimplemented(command string) Error {
	return Error{Kind: ErrCommandUnimplemented, Command: command}
}

func (e Error) Error() string {
	switch e.Kind {
	case ErrNoCurrentImage:
		return "No current image for the output: " + e.Output
	case ErrUnidentifiedOutput:
		return "Unidentified output provided: " + e.Output
	case ErrNoProfile:
		return fmt.Sprintf("Profile %q is not defined.", e.Profile)
	case ErrCommandUnimplemented:
		return "Daemon unimplemented command: " + e.Command
	}
	return "Unexpected error occured."
}

func (e Error) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case ErrNoCurrentImage:
		return tagged(string(e.Kind), map[string]string{"output": e.Output})
	case ErrUnidentifiedOutput:
		return tagged(string(e.Kind), map[string]string{"output_name": e.Output})
	case ErrNoProfile:
		return tagged(string(e.Kind), e.Profile)
	case ErrCommandUnimplemented:
		return tagged(string(e.Kind), map[string]string{"command": e.Command})
	}
	return json.Marshal(string(ErrUnexpected))
}

func (e *Error) UnmarshalJSON(data []byte) error {
	tag, payload, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("error: %w", err)
	}

	out := Error{Kind: ErrorKind(tag)}
	switch out.Kind {
	case ErrNoCurrentImage:
		var v struct {
			Output string `json:"output"`
		}
		err = unmarshalArgs(payload, &v)
		out.Output = v.Output
	case ErrUnidentifiedOutput:
		var v struct {
			OutputName string `json:"output_name"`
		}
		err = unmarshalArgs(payload, &v)
		out.Output = v.OutputName
	case ErrNoProfile:
		err = unmarshalArgs(payload, &out.Profile)
	case ErrCommandUnimplemented:
		var v struct {
			Command string `json:"command"`
		}
		err = unmarshalArgs(payload, &v)
		out.Command = v.Command
	case ErrUnexpected:
	default:
		return fmt.Errorf("unknown error %q", tag)
	}
	if err != nil {
		return fmt.Errorf("error %s: %w", tag, err)
	}

	*e = out
	return nil
}

// OutputWallpaper is the image shown on one output.
type OutputWallpaper struct {
	OutputName string `json:"output_name"`
	Wallpaper  string `json:"wallpaper"`
}

func (w OutputWallpaper) String() string {
	return w.OutputName + ": " + w.Wallpaper
}

type OutputKind string

const (
	OutMessage          OutputKind = "Message"
	OutCurrentWallpaper OutputKind = "CurrentWallpaper"
	OutWallpapers       OutputKind = "Wallpapers"
	OutSingleError      OutputKind = "SingleError"
	OutMultipleErrors   OutputKind = "MultipleErrors"
	OutProfiles         OutputKind = "Profiles"
	OutGpuMetrics       OutputKind = "GpuMetrics"
	OutEnd              OutputKind = "End"
)

// Output is one reply record. Only the field matching Kind is set.
type Output struct {
	Kind       OutputKind
	Message    string
	Wallpaper  OutputWallpaper
	Wallpapers []OutputWallpaper
	Err        Error
	Errors     []Error
	Profiles   []string
	Metrics    metrics.Snapshot
	End        string
}

func Message(msg string) Output {
	return Output{Kind: OutMessage, Message: msg}
}

func CurrentWallpaper(output, wallpaper string) Output {
	return Output{Kind: OutCurrentWallpaper, Wallpaper: OutputWallpaper{OutputName: output, Wallpaper: wallpaper}}
}

func Wallpapers(list []OutputWallpaper) Output {
	if list == nil {
		list = []OutputWallpaper{}
	}
	return Output{Kind: OutWallpapers, Wallpapers: list}
}

func SingleError(err Error) Output {
	return Output{Kind: OutSingleError, Err: err}
}

func MultipleErrors(errs []Error) Output {
	return Output{Kind: OutMultipleErrors, Errors: errs}
}

func Profiles(names []string) Output {
	if names == nil {
		names = []string{}
	}
	return Output{Kind: OutProfiles, Profiles: names}
}

func GpuMetrics(s metrics.Snapshot) Output {
	return Output{Kind: OutGpuMetrics, Metrics: s}
}

func End(command string) Output {
	return Output{Kind: OutEnd, End: command}
}

// IsError reports whether the record carries one or more errors.
func (o Output) IsError() bool {
	return o.Kind == OutSingleError || o.Kind == OutMultipleErrors
}

func (o Output) MarshalJSON() ([]byte, error) {
	var payload any
	switch o.Kind {
	case OutMessage:
		payload = o.Message
	case OutCurrentWallpaper:
		payload = o.Wallpaper
	case OutWallpapers:
		payload = o.Wallpapers
	case OutSingleError:
		payload = o.Err
	case OutMultipleErrors:
		payload = o.Errors
	case OutProfiles:
		payload = o.Profiles
	case OutGpuMetrics:
		payload = o.Metrics
	case OutEnd:
		payload = o.End
	default:
		return nil, fmt.Errorf("unknown output %q", o.Kind)
	}
	return tagged(string(o.Kind), payload)
}

func (o *Output) UnmarshalJSON(data []byte) error {
	tag, payload, err := splitTagged(data)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if payload == nil {
		return fmt.Errorf("output %s has no payload", tag)
	}

	out := Output{Kind: OutputKind(tag)}
	var target any
	switch out.Kind {
	case OutMessage:
		target = &out.Message
	case OutCurrentWallpaper:
		target = &out.Wallpaper
	case OutWallpapers:
		target = &out.Wallpapers
	case OutSingleError:
		target = &out.Err
	case OutMultipleErrors:
		target = &out.Errors
	case OutProfiles:
		target = &out.Profiles
	case OutGpuMetrics:
		target = &out.Metrics
	case OutEnd:
		target = &out.End
	default:
		return fmt.Errorf("unknown output %q", tag)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("output %s: %w", tag, err)
	}

	*o = out
	return nil
}

// String renders the record for humans.
func (o Output) String() string {
	switch o.Kind {
	case OutMessage:
		return o.Message
	case OutCurrentWallpaper:
		return o.Wallpaper.String()
	case OutWallpapers:
		lines := make([]string, len(o.Wallpapers))
		for i, w := range o.Wallpapers {
			lines[i] = w.String()
		}
		return strings.Join(lines, "\n")
	case OutSingleError:
		return o.Err.Error()
	case OutMultipleErrors:
		lines := make([]string, len(o.Errors))
		for i, e := range o.Errors {
			lines[i] = e.Error()
		}
		return strings.Join(lines, "\n")
	case OutProfiles:
		return strings.Join(o.Profiles, "\n")
	case OutGpuMetrics:
		return o.Metrics.String()
	case OutEnd:
		return "end of command " + o.End
	}
	return ""
}
