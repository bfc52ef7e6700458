package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	godaemon "github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matjam/wayper/internal/cli/cmd/utils"
	"github.com/matjam/wayper/internal/config"
	"github.com/matjam/wayper/internal/daemon"
	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/gpu/webgpu"
	"github.com/matjam/wayper/internal/socket"
	"github.com/matjam/wayper/internal/wayland"
)

func NewStartCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "start",
		Short: "Start the wallpaper daemon",
		Run: func(cmd *cobra.Command, args []string) {
			if background, _ := cmd.Flags().GetBool("background"); background {
				startBackground()
				return
			}
			StartDaemon()
		},
	}
	c.Flags().BoolP("background", "b", false, "Run as a daemon")
	return c
}

func pidFile() string {
	return filepath.Join(utils.RuntimeDir(), "wayper.pid")
}

func daemonContext() *godaemon.Context {
	return &godaemon.Context{
		PidFileName: pidFile(),
		PidFilePerm: 0o644,
		Umask:       0o027,
	}
}

// startBackground forks the daemon off the terminal. The parent returns as soon as the
// child is running.
func startBackground() {
	dctx := daemonContext()

	child, err := dctx.Reborn()
	if err != nil {
		log.Fatalf("failed to start in the background: %v", err)
	}
	if child != nil {
		log.Infof("wayper started in the background with PID %d", child.Pid)
		return
	}
	defer dctx.Release()

	setupRotatingLogger()
	StartDaemon()
}

// StartDaemon connects to the compositor and runs the daemon until it is signalled.
func StartDaemon() {
	log.Infof("wayper starting in PID %d", os.Getpid())

	// wayland and wgpu calls must stay on one thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	socketPath := viper.GetString("daemon.socket_path")
	if _, err := socket.Send(socketPath, socket.Command{Kind: socket.CmdPing}); err == nil {
		log.Infof("wayper is already running, exiting")
		return
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		log.Fatal("no config file found, run wayper --installconfig to create one")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := daemon.NewLoader(ctx,
		viper.GetString("daemon.loader"),
		viper.GetInt("daemon.decode_workers"),
		viper.GetInt("daemon.job_cache_size"))
	if err != nil {
		log.Fatalf("Error starting the image loader: %v", err)
	}

	device := webgpu.New(gpu.PresentMode(viper.GetString("daemon.present_mode")))
	d := daemon.New(cfg, device, loader, daemon.Options{
		SocketPath:    socketPath,
		HTTPSocket:    viper.GetString("daemon.http_socket"),
		TextureBudget: viper.GetInt64("daemon.texture_budget_mb") << 20,
		MetricsEvery:  viper.GetUint64("daemon.metrics_every"),
	})

	display, err := wayland.Connect(&compositor{d: d})
	if err != nil {
		d.Close()
		log.Fatalf("Error connecting to the compositor: %v", err)
	}
	defer display.Close()

	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			log.Infof("config file %s changed", e.Name)
			d.RequestReload()
		}
	})
	viper.WatchConfig()

	if err := d.Run(ctx, display); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("daemon stopped: %v", err)
	}
	log.Infof("wayper exited")
}

func setupRotatingLogger() {
	home := os.Getenv("HOME")
	logDir := filepath.Join(home, ".local", "share", "wayper")
	logPath := filepath.Join(logDir, "wayper.log")

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}

	writer, err := rotatelogs.New(
		logPath+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationSize(10*1024*1024),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		log.Fatalf("failed to configure log rotation: %v", err)
	}

	log.SetOutput(writer)
	if !viper.GetBool("debug") {
		log.SetLevel(log.InfoLevel)
	}
}
