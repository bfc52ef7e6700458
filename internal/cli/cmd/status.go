package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matjam/wayper/internal/cli/cmd/utils"
	"github.com/matjam/wayper/internal/ipc"
)

func NewStatusCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Get wayper status",
		Long:  `Returns the current status of the wayper daemon from its HTTP API.`,
		Run: func(cmd *cobra.Command, args []string) {
			path := viper.GetString("daemon.http_socket")
			if p, _ := cmd.Flags().GetString("http-socket"); p != "" {
				path = p
			}

			status, body, err := ipc.GetStatus(path)
			if err != nil {
				log.Errorf("Error getting status: %v", err)
				return
			}

			if raw, _ := cmd.Flags().GetBool("json"); raw {
				utils.PrintJSON(body)
				return
			}
			utils.PrintJSONColored(status)
		},
	}
	c.Flags().Bool("json", false, "Print the raw response")
	c.Flags().String("http-socket", "", "HTTP API socket path (default from the config)")
	return c
}
