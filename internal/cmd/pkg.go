package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/howth-dev/howth/internal/cmdutil"
	"github.com/howth-dev/howth/internal/daemon/connector"
	"github.com/howth-dev/howth/internal/daemonclient"
)

func newPkgCmd(helper *cmdutil.Helper) *cobra.Command {
	pkg := &cobra.Command{
		Use:   "pkg",
		Short: "Manage and inspect package.json dependencies",
	}
	pkg.AddCommand(newPkgAddCmd(helper))
	pkg.AddCommand(newPkgInstallCmd(helper))
	pkg.AddCommand(newPkgGraphCmd(helper))
	pkg.AddCommand(newPkgExplainCmd(helper))
	pkg.AddCommand(newPkgWhyCmd(helper))
	pkg.AddCommand(newPkgDoctorCmd(helper))
	pkg.AddCommand(newPkgCacheCmd(helper))
	return pkg
}

func newPkgCacheCmd(helper *cmdutil.Helper) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and reclaim the content-addressed package cache",
	}
	cache.AddCommand(newPkgCacheListCmd(helper))
	cache.AddCommand(newPkgCachePruneCmd(helper))
	return cache
}

func newPkgCacheListCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blobs held in the content-addressed package cache",
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgCacheList()
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				for _, b := range resp.Blobs {
					fmt.Printf("%s %d\n", b.Hash, b.Size)
				}
				fmt.Printf("total: %d bytes in %d blobs\n", resp.TotalBytes, len(resp.Blobs))
			})
		},
	}
}

func newPkgCachePruneCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove cache blobs no longer linked into any project",
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgCachePrune()
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				fmt.Printf("removed %d blobs, freed %d bytes\n", resp.Removed, resp.FreedBytes)
			})
		},
	}
}

func newPkgAddCmd(helper *cmdutil.Helper) *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "add <spec...>",
		Short: "Add one or more dependencies to package.json (spec §4.1)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgAdd(args, dev)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				for _, name := range resp.Added {
					fmt.Printf("+ %s\n", name)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "add as a devDependency")
	return cmd
}

func newPkgInstallCmd(helper *cmdutil.Helper) *cobra.Command {
	var frozen bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve, fetch, and link every declared dependency (spec §4.3/§4.4)",
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgInstall(frozen)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				fmt.Printf("installed %d packages\n", resp.Installed)
			})
		},
	}
	cmd.Flags().BoolVar(&frozen, "frozen", false, "fail instead of updating the lockfile if it is out of date")
	return cmd
}

func newPkgGraphCmd(helper *cmdutil.Helper) *cobra.Command {
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the installed node_modules dependency graph (spec §4.12)",
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgGraph(maxDepth)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				printRawJSONLines("node", resp.Nodes)
				printRawJSONLines("orphan", resp.Orphans)
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "limit the traversal depth (0 = default of 25)")
	return cmd
}

func newPkgExplainCmd(helper *cmdutil.Helper) *cobra.Command {
	var parentDir string
	cmd := &cobra.Command{
		Use:   "explain <specifier>",
		Short: "Trace module resolution for a specifier (spec §4.12)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			dir := parentDir
			if dir == "" {
				dir = base.RepoRoot.String()
			}
			resp, err := client.PkgExplain(args[0], dir)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				printRawJSONLines("tried", resp.Steps)
				if resp.Resolved != "" {
					fmt.Printf("resolved: %s\n", resp.Resolved)
				} else {
					fmt.Println("not resolved")
				}
			})
		},
	}
	cmd.Flags().StringVar(&parentDir, "from", "", "directory to resolve from (defaults to the repo root)")
	return cmd
}

func newPkgWhyCmd(helper *cmdutil.Helper) *cobra.Command {
	var maxChains int
	cmd := &cobra.Command{
		Use:   "why <package>",
		Short: "Show which dependency chains pull in a package (spec §4.12)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgWhy(args[0], maxChains)
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				printRawJSONLines("chain", resp.Chains)
			})
		},
	}
	cmd.Flags().IntVar(&maxChains, "max-chains", 0, "cap the number of chains reported (0 = default of 5, max 50)")
	return cmd
}

func newPkgDoctorCmd(helper *cmdutil.Helper) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run fixed diagnostic checks over the dependency tree (spec §4.12)",
		RunE: func(c *cobra.Command, args []string) error {
			base, client, conn, err := connectFor(helper)
			if err != nil {
				return err
			}
			defer conn.Close()
			resp, err := client.PkgDoctor()
			if err != nil {
				return cliError{reportErr(base.JSON, err)}
			}
			return emit(base.JSON, resp, func() {
				printRawJSONLines("finding", resp.Findings)
			})
		},
	}
}

// connectFor is the common GetCmdBase+Connect prelude shared by every
// pkg subcommand, returned as (base, client, conn, err) where err is
// already a *cliError ready to propagate from RunE.
func connectFor(helper *cmdutil.Helper) (*cmdutil.CmdBase, *daemonclient.DaemonClient, *connector.Client, error) {
	base, err := helper.GetCmdBase()
	if err != nil {
		return nil, nil, nil, cliError{reportErr(false, err)}
	}
	client, conn, err := base.Connect(false)
	if err != nil {
		return nil, nil, nil, cliError{reportErr(base.JSON, err)}
	}
	return base, client, conn, nil
}

// printRawJSONLines renders a json.RawMessage array field as one
// "label: <compact element>" line per entry, for the non-JSON text
// rendering of responses whose payload is a pre-marshaled slice.
func printRawJSONLines(label string, raw json.RawMessage) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return
	}
	for _, item := range items {
		fmt.Printf("%s: %s\n", label, string(item))
	}
}
