package cmd

import (
	"github.com/spf13/cobra"

	"github.com/matjam/wayper/internal/socket"
)

func NewChangeProfileCmd() *cobra.Command {
	return controlCmd("change-profile [name]", "Switch every output to a profile, the default one without a name",
		cobra.MaximumNArgs(1), func(_ *cobra.Command, args []string) socket.Command {
			cmd := socket.Command{Kind: socket.CmdChangeProfile}
			if len(args) == 1 {
				cmd.ProfileName = &args[0]
			}
			return cmd
		})
}

func NewProfilesCmd() *cobra.Command {
	return controlCmd("profiles", "List the configured profiles", cobra.NoArgs, func(*cobra.Command, []string) socket.Command {
		return socket.Command{Kind: socket.CmdProfiles}
	})
}
