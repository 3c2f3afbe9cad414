package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/ipc"
	"github.com/howth-dev/howth/internal/util"
)

func newBuildCmd(helper *cmdutil.Helper) *cobra.Command {
	var force, dryRun bool
	var maxParallel int

	cmd := &cobra.Command{
		Use:   "build [targets...]",
		Short: "Run the build graph once (spec §4.7)",
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

			resp, err := client.Build(ipc.BuildRequest{
				Targets:     args,
				Force:       force,
				DryRun:      dryRun,
				MaxParallel: maxParallel,
			})
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			if !resp.OK {
				err := fmt.Errorf("build failed")
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				fmt.Println("build ok")
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore the cache and rebuild every node")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the plan without executing it")
	cmd.Flags().Var(&util.ConcurrencyValue{Value: &maxParallel}, "max-parallel", "cap concurrent node execution: an absolute number or a percentage of CPU cores, e.g. 50% (0/unset = config default)")
	return cmd
}
