// Command hammer drives atomic BTRFS-backed system deployments: install,
// remove, update, deploy, switch, rollback, clean, status, history,
// check-transaction, lock, and unlock, per the CLI surface in §6.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/HackerOS-Linux-System/hammer/internal/app"
	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hammer",
	Short: "Atomic image-based system deployments on BTRFS",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		return app.RequireRoot()
	},
	SilenceUsage: true,
}

func newApp(operation string) (*app.App, error) {
	return app.New(operation)
}

func printDeployment(d *hammer.Deployment) {
	fmt.Printf("deployment: %s\n", d.Name)
	fmt.Printf("  status:         %s\n", d.Meta.Status)
	fmt.Printf("  action:         %s\n", d.Meta.Action)
	fmt.Printf("  parent:         %s\n", d.Meta.Parent)
	fmt.Printf("  kernel:         %s\n", d.Meta.Kernel)
	fmt.Printf("  system_version: %s\n", d.Meta.SystemVersion)
	fmt.Printf("  created:        %s\n", d.Meta.Created)
}

var installCmd = &cobra.Command{
	Use:   "install <pkg>",
	Short: "Atomically install a package as a new deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg := args[0]
		container, _ := cmd.Flags().GetBool("container")

		a, err := newApp("install")
		if err != nil {
			return err
		}
		defer a.Close()

		if container {
			return a.RunContainerDelegate("install", pkg)
		}

		d, err := a.Engine().Install(pkg)
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <pkg>",
	Short: "Atomically remove a package as a new deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg := args[0]
		container, _ := cmd.Flags().GetBool("container")

		a, err := newApp("remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if container {
			return a.RunContainerDelegate("remove", pkg)
		}

		d, err := a.Engine().Remove(pkg)
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Rebuild the current deployment as a new one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("deploy")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Engine().Deploy()
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Atomically upgrade every installed package",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("update")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Engine().Update()
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch [<name>]",
	Short: "Switch to the named deployment, or the second-newest if omitted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) > 0 {
			target = args[0]
		}

		a, err := newApp("switch")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Engine().Switch(target)
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [<n>]",
	Short: "Switch to the n-th newest deployment other than current (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) > 0 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid rollback count %q: %w", args[0], err)
			}
			n = parsed
		}

		a, err := newApp("rollback")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Engine().Rollback(n)
		if err != nil {
			return err
		}
		printDeployment(d)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Apply the retention policy, deleting excess old deployments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("clean")
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.Engine().Clean(0)
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			fmt.Println("nothing to clean")
			return nil
		}
		for _, name := range removed {
			fmt.Printf("removed %s\n", name)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current deployment's metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine().Status()
		if err != nil {
			return err
		}
		printDeployment(report.Current)
		if report.PendingMarker != nil {
			fmt.Printf("  pending:        %s\n", report.PendingMarker.Deployment)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print every deployment, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.Engine().History()
		if err != nil {
			return err
		}
		for _, e := range entries {
			marker := " "
			if e.IsCurrent {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-10s %-10s %s\n", marker, e.Name, e.Status, e.Action, e.Created.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var checkTransactionCmd = &cobra.Command{
	Use:   "check-transaction",
	Short: "Reconcile any pending transaction against the actually-booted deployment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("check-transaction")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Engine().CheckTransaction()
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Recursively seal the current deployment read-only",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("lock")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Engine().Lock()
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Recursively make the current deployment writable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("unlock")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Engine().Unlock()
	},
}

func init() {
	installCmd.Flags().Bool("container", false, "delegate to the container installation tool")
	removeCmd.Flags().Bool("container", false, "delegate to the container removal tool")

	rootCmd.AddCommand(
		installCmd,
		removeCmd,
		deployCmd,
		updateCmd,
		switchCmd,
		rollbackCmd,
		cleanCmd,
		statusCmd,
		historyCmd,
		checkTransactionCmd,
		lockCmd,
		unlockCmd,
	)
}
