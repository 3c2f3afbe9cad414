package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/ipc"
)

// newWatchCmd implements spec §4.8 "howth watch build": run once, then
// print one line (or, in JSON mode, one object) per rebuild wave until
// the daemon connection closes or a signal is received.
func newWatchCmd(helper *cmdutil.Helper) *cobra.Command {
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Watch for changes and react continuously",
	}
	watch.AddCommand(newWatchBuildCmd(helper))
	return watch
}

func newWatchBuildCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "build [targets...]",
		Short: "Rebuild on every file change (spec §4.8)",
		RunE: func(c *cobra.Command, args []string) error {
			base, err := helper.GetCmdBase()
			if err != nil {
				return cliError{reportErr(false, err)}
			}
			client, conn, err := base.Connect(false)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			defer conn.Close()
			defer func() { _ = client.StopWatchBuild() }()

			event, err := client.WatchBuild(ipc.WatchBuildRequest{Targets: args})
			for err == nil {
				printWatchEvent(base.JSON, event)
				event, err = client.Next()
			}
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return nil
		},
	}
}

func printWatchEvent(jsonMode bool, event *ipc.WatchBuildEvent) {
	if jsonMode {
		raw, _ := json.Marshal(event)
		fmt.Println(string(raw))
		return
	}
	status := "ok"
	if !event.OK {
		status = "failed"
	}
	fmt.Printf("[%s] rebuild %s\n", event.TriggeredAt, status)
}
