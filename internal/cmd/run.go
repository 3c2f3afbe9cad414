package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/ipc"
)

func newRunCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "run <entry> [-- args...]",
		Short: "Resolve entry (spec §4.2) and print the command to run it",
		Args:  cobra.MinimumNArgs(1),
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

			resp, err := client.Run(ipc.RunRequest{
				Entry: args[0],
				Args:  args[1:],
				Cwd:   base.RepoRoot.String(),
			})
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				fmt.Println(strings.Join(resp.Command, " "))
			})
		},
	}
}
