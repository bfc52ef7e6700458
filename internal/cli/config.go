package cli

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matjam/wayper/internal/cli/cmd/utils"
	"github.com/matjam/wayper/internal/socket"
)

func SetDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("daemon.socket_path", socket.DefaultPath)
	viper.SetDefault("daemon.http_socket", filepath.Join(utils.RuntimeDir(), "wayper.sock"))
	viper.SetDefault("daemon.decode_workers", 2)
	viper.SetDefault("daemon.texture_budget_mb", 512)
	viper.SetDefault("daemon.metrics_every", 100)
	viper.SetDefault("daemon.loader", "worker")
	viper.SetDefault("daemon.job_cache_size", 5)
	viper.SetDefault("daemon.present_mode", "mailbox")
}

// InitConfig finds the config file and layers defaults and WAYPER_* environment
// variables under it. Control commands work without a config file, start does not.
func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
		if viper.GetString("config") != "" {
			viper.SetConfigFile(viper.GetString("config"))
		} else {
			viper.AddConfigPath(utils.ConfigDir())
			viper.AddConfigPath("/etc/xdg/wayper")
		}
	}

	SetDefaults()

	viper.SetEnvPrefix("wayper")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read environment variables that match

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		log.Debugf("no config file found: %v", err)
		return
	}
	cobra.CheckErr(err)

	// debug can also be set in the file
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
}
