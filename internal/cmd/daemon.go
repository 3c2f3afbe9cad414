package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/daemon"
	"github.com/howth-dev/howth/internal/daemon/connector"
	"github.com/howth-dev/howth/internal/signals"
)

// newDaemonCmd implements spec §6's `howth daemon` surface: running the
// process itself (the default, used by connector.Connector.startDaemon
// as a subprocess), plus the start/stop/restart/status lifecycle
// wrappers over Ping/Shutdown (spec §4.11), grounded on the teacher's
// cli/internal/daemon/{lifecycle,status}.go.
func newDaemonCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	var idleTime string

	root := &cobra.Command{
		Use:   "daemon",
		Short: "Run or manage the howth background daemon",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			err = daemon.Run(daemon.RunOpts{
				RepoRoot:    base.RepoRoot.String(),
				Version:     base.HowthVersion,
				IdleTimeout: idleTime,
			}, signalWatcher)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return nil
		},
	}
	root.Flags().StringVar(&idleTime, "idle-time", "", `shut down after this long with no requests (e.g. "1h"); defaults to 4h`)

	root.AddCommand(newDaemonStatusCmd(helper))
	root.AddCommand(newDaemonStartCmd(helper))
	root.AddCommand(newDaemonStopCmd(helper))
	root.AddCommand(newDaemonRestartCmd(helper))
	return root
}

func newDaemonStatusCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			client, conn, err := base.Connect(true)
			if err != nil {
				if errors.Is(err, connector.ErrDaemonNotRunning) {
					return emit(base.JSON, map[string]interface{}{"running": false}, func() {
						fmt.Println("howth daemon is not running")
					})
				}
				return cliError{reportErr(base.JSON, err)}
			}
			defer conn.Close()
			status := client.Status()
			return emit(base.JSON, map[string]interface{}{
				"running":   true,
				"log_file":  status.LogFile,
				"pid_file":  status.PidFile,
				"sock_file": status.SockFile,
			}, func() {
				fmt.Println("howth daemon is running")
			})
		},
	}
}

func newDaemonStartCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon if it isn't already running",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			_, conn, err := base.Connect(false)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			defer conn.Close()
			return emit(base.JSON, map[string]interface{}{"running": true}, func() {
				fmt.Println("howth daemon is running")
			})
		},
	}
}

func newDaemonStopCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon if it is running",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			if err := stopDaemon(base); err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, map[string]interface{}{"running": false}, func() {
				fmt.Println("howth daemon stopped")
			})
		},
	}
}

func newDaemonRestartCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop then start the daemon",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			if err := stopDaemon(base); err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			_, conn, err := base.Connect(false)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			defer conn.Close()
			return emit(base.JSON, map[string]interface{}{"running": true}, func() {
				fmt.Println("howth daemon restarted")
			})
		},
	}
}

func stopDaemon(base *cmdutil.CmdBase) error {
	client, conn, err := base.Connect(true)
	if err != nil {
		if errors.Is(err, connector.ErrDaemonNotRunning) {
			return nil
		}
		return err
	}
	defer conn.Close()
	return client.Shutdown()
}

