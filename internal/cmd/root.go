// Package cmd holds the root cobra command for howth.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/signals"
)

// RunWithArgs runs howth with the specified arguments. The arguments
// should not include the binary being invoked (e.g. "howth").
func RunWithArgs(args []string, howthVersion string) int {
	signalWatcher := signals.NewWatcher()
	helper := cmdutil.NewHelper(howthVersion)
	root := getCmd(helper, signalWatcher)
	root.SetArgs(args)

	doneCh := make(chan struct{})
	var execErr error
	go func() {
		execErr = root.Execute()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		helper.Cleanup()
		signalWatcher.Close()
		if execErr != nil {
			if ce, ok := execErr.(cliError); ok {
				return ce.ExitCode
			}
			fmt.Println(execErr)
			return exitInternal
		}
		return exitSuccess
	case <-signalWatcher.Done():
		return exitInternal
	}
}

// cliError lets a subcommand's RunE carry an explicit exit code (spec
// §6's 0/1/2 table) back out through cobra's plain error return.
type cliError struct {
	ExitCode int
}

func (cliError) Error() string { return "" }

func getCmd(helper *cmdutil.Helper, signalWatcher *signals.Watcher) *cobra.Command {
	root := &cobra.Command{
		Use:           "howth",
		Short:         "The JS/TS toolchain daemon: package manager, build engine, and bundler in one",
		Version:       helper.HowthVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	helper.AddFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(helper))
	root.AddCommand(newDaemonCmd(helper, signalWatcher))
	root.AddCommand(newPingCmd(helper))
	root.AddCommand(newPkgCmd(helper))
	root.AddCommand(newBuildCmd(helper))
	root.AddCommand(newWatchCmd(helper))
	return root
}
