package cmd

import (
	"github.com/spf13/cobra"

	"github.com/matjam/wayper/internal/socket"
)

func visibilityCmd(use, short string, kind socket.CommandKind) *cobra.Command {
	return withOutput(controlCmd(use, short, cobra.NoArgs, func(cmd *cobra.Command, _ []string) socket.Command {
		return socket.Command{Kind: kind, OutputName: outputName(cmd)}
	}))
}

func NewToggleCmd() *cobra.Command {
	return visibilityCmd("toggle", "Toggle wallpaper visibility", socket.CmdToggle)
}

func NewHideCmd() *cobra.Command {
	return visibilityCmd("hide", "Hide the wallpaper, drawing black instead", socket.CmdHide)
}

func NewShowCmd() *cobra.Command {
	return visibilityCmd("show", "Show the wallpaper again", socket.CmdShow)
}
