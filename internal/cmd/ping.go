package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
)

func newPingCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check whether the howth daemon is reachable",
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

			// A fresh nonce each call so a stale cached response can't
			// masquerade as a live round trip.
			nonce := uuid.NewString()
			echoed, err := client.Ping(nonce)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			status := client.Status()
			return emit(base.JSON, map[string]interface{}{
				"ok":        echoed == nonce,
				"log_file":  status.LogFile,
				"pid_file":  status.PidFile,
				"sock_file": status.SockFile,
			}, func() {
				fmt.Println("howth daemon is running")
				fmt.Printf("  log:  %s\n", status.LogFile)
				fmt.Printf("  pid:  %s\n", status.PidFile)
				fmt.Printf("  sock: %s\n", status.SockFile)
			})
		},
	}
}
