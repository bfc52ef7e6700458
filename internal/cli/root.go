package cli

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matjam/wayper"
	"github.com/matjam/wayper/internal/cli/cmd"
	"github.com/matjam/wayper/internal/cli/cmd/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wayper",
	Short: "A GPU accelerated wallpaper daemon for Wayland",
	Long: `Wayper draws wallpapers on every output of wlroots based Wayland compositors
using WebGPU, cycling through a directory per output with smooth transitions.
Run "wayper start" to start the daemon and the other subcommands to control it.`,
	Run: func(c *cobra.Command, args []string) {
		if v, err := c.Flags().GetBool("installconfig"); err == nil && v {
			utils.InstallDefaultConfig()
			return
		}

		if v, err := c.Flags().GetBool("show-config"); err == nil && v {
			allSettings := viper.AllSettings()

			log.Infof("Using config file: %v", viper.ConfigFileUsed())
			log.Infof("All settings:")
			utils.PrintJSONColored(allSettings)
			return
		}

		babyBlue := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
		yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
		green := lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
		if v, err := c.Flags().GetBool("version"); err == nil && v {
			log.Infof("%v version %v © 2025 %v",
				babyBlue.Render("wayper "),
				green.Render(strings.Trim(wayper.Version, "\n\r ")),
				yellow.Render("Nathan Ollerenshaw"))
			return
		}

		c.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)

	RegisterFlags(rootCmd)

	rootCmd.AddCommand(
		cmd.NewStartCmd(),
		cmd.NewStopCmd(),
		cmd.NewStatusCmd(),
		cmd.NewPingCmd(),
		cmd.NewCurrentCmd(),
		cmd.NewToggleCmd(),
		cmd.NewHideCmd(),
		cmd.NewShowCmd(),
		cmd.NewChangeProfileCmd(),
		cmd.NewProfilesCmd(),
		cmd.NewGpuMetricsCmd(),
		cmd.NewGenManCmd(rootCmd),
	)
}
