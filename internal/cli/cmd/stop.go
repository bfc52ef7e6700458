package cmd

import (
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func NewStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background wayper daemon",
		Run: func(cmd *cobra.Command, args []string) {
			proc, err := daemonContext().Search()
			if err != nil || proc == nil {
				log.Fatalf("No background daemon found (pid file %s)", pidFile())
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				log.Fatalf("Failed to stop PID %d: %v", proc.Pid, err)
			}
			log.Infof("Stop signal sent to PID %d", proc.Pid)
		},
	}
}
