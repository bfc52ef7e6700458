package utils

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"

	"github.com/matjam/wayper"
)

// PrintJSONColored logs data as indented, coloured JSON.
func PrintJSONColored(data any) {
	j, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Errorf("Error marshalling JSON: %v", err)
		return
	}

	jPretty := pretty.Color(j, nil)
	log.Info(string(jPretty))
}

// PrintJSON writes raw JSON to stdout, pretty printed and coloured when stdout is a
// terminal.
func PrintJSON(raw []byte) {
	out := pretty.Pretty(raw)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		out = pretty.Color(out, nil)
	}
	os.Stdout.Write(out)
}

// RuntimeDir is $XDG_RUNTIME_DIR, or the temp dir when it is unset.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}

// ConfigDir is $XDG_CONFIG_HOME/wayper.
func ConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "wayper")
}

func InstallDefaultConfig() {
	configPath := filepath.Join(ConfigDir(), "config.toml")

	if _, err := os.Stat(configPath); err == nil {
		log.Warnf("Config file already exists at %v", configPath)
		return
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		log.Fatalf("Error creating config directory: %v", err)
	}

	if err := os.WriteFile(configPath, []byte(wayper.DefaultConfig), 0644); err != nil {
		log.Fatalf("Error writing config file: %v", err)
	}

	log.Infof("Installed default config file at %v", configPath)
}
