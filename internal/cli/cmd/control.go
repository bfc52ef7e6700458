package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matjam/wayper/internal/cli/cmd/utils"
	"github.com/matjam/wayper/internal/ipc"
	"github.com/matjam/wayper/internal/socket"
)

var errReplied = errors.New("the daemon replied with an error")

// controlCmd builds a subcommand that sends one command over the control socket.
func controlCmd(use, short string, args cobra.PositionalArgs, build func(*cobra.Command, []string) socket.Command) *cobra.Command {
	c := &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         args,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, build(cmd, args))
		},
	}
	c.Flags().Bool("json", false, "Print the raw replies as JSON")
	c.Flags().String("socket", "", "Control socket path (default from the config)")
	return c
}

// withOutput adds the -o flag and reads it back as an optional output name.
func withOutput(c *cobra.Command) *cobra.Command {
	c.Flags().StringP("output", "o", "", "Output name, all outputs when empty")
	return c
}

func outputName(cmd *cobra.Command) *string {
	if name, _ := cmd.Flags().GetString("output"); name != "" {
		return &name
	}
	return nil
}

func socketPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("socket"); p != "" {
		return p
	}
	return viper.GetString("daemon.socket_path")
}

func sendCommand(cmd *cobra.Command, command socket.Command) error {
	log.Debugf("sending %s to %s", command, socketPath(cmd))

	replies, err := socket.Send(socketPath(cmd), command)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", command, err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	failed := false
	for _, r := range replies {
		if r.IsError() {
			failed = true
		}
		if asJSON {
			b, err := json.Marshal(r)
			if err != nil {
				return err
			}
			utils.PrintJSON(b)
			continue
		}
		if r.IsError() {
			log.Error(r.String())
			continue
		}
		fmt.Println(r.String())
	}

	if failed {
		return errReplied
	}
	return nil
}

func NewPingCmd() *cobra.Command {
	return controlCmd("ping", "Check that the daemon is running", cobra.NoArgs, func(*cobra.Command, []string) socket.Command {
		return socket.Command{Kind: socket.CmdPing}
	})
}

func NewCurrentCmd() *cobra.Command {
	return withOutput(controlCmd("current", "Show the current wallpaper of each output", cobra.NoArgs, func(cmd *cobra.Command, _ []string) socket.Command {
		return socket.Command{Kind: socket.CmdCurrent, OutputName: outputName(cmd)}
	}))
}

func NewGpuMetricsCmd() *cobra.Command {
	c := controlCmd("gpu-metrics", "Show texture and bind group cache metrics", cobra.NoArgs, func(*cobra.Command, []string) socket.Command {
		return socket.Command{Kind: socket.CmdGpuMetrics}
	})
	c.Flags().Bool("http", false, "Ask the HTTP API instead of the control socket")

	send := c.RunE
	c.RunE = func(cmd *cobra.Command, args []string) error {
		if viaHTTP, _ := cmd.Flags().GetBool("http"); !viaHTTP {
			return send(cmd, args)
		}
		snap, err := ipc.GetMetrics(viper.GetString("daemon.http_socket"))
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			b, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			utils.PrintJSON(b)
			return nil
		}
		fmt.Println(snap.String())
		return nil
	}
	return c
}
