// Command vmbuilder builds virtual machine disk images.
//
//	vmbuilder <hypervisor> <distro> [options]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/distro/debootstrap"
	"github.com/jbweber/vmbuilder/internal/hypervisor/kvm"
	"github.com/jbweber/vmbuilder/internal/hypervisor/vmware"
	"github.com/jbweber/vmbuilder/internal/logging"
	"github.com/jbweber/vmbuilder/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	reg, err := newRegistry()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd, err := newRootCmd(reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRegistry registers every built-in plugin.
func newRegistry() (*vm.Registry, error) {
	reg := vm.NewRegistry()
	for _, register := range []func(*vm.Registry) error{
		debootstrap.Register,
		kvm.Register,
		vmware.Register,
	} {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register plugins: %w", err)
		}
	}
	return reg, nil
}

// newRootCmd returns the vmbuilder command for the plugins in reg. The
// build context is created up front so every option becomes a flag; opts
// are passed on to it.
func newRootCmd(reg *vm.Registry, opts ...vm.Option) (*cobra.Command, error) {
	v, err := vm.New(reg, opts...)
	if err != nil {
		return nil, err
	}

	var verbosity logging.Verbosity

	cmd := &cobra.Command{
		Use:   "vmbuilder <hypervisor> <distro> [options]",
		Short: "Build virtual machine disk images",
		Long: `vmbuilder installs a distro into freshly partitioned disk images and
converts them into the format of a hypervisor.

Run "vmbuilder list" for the available distros and hypervisors.`,
		Example: `  sudo vmbuilder kvm ubuntu --suite noble --hostname web01 --mem 1024
  sudo vmbuilder vmware debian -d /srv/images/db01 --part db01.part`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Configure(logrus.StandardLogger(), cmd.ErrOrStderr(), verbosity)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return build(cmd, v, args[0], args[1])
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&verbosity.Debug, "debug", false, "Show debug messages")
	pf.BoolVarP(&verbosity.Verbose, "verbose", "v", false, "Show progress messages")
	pf.BoolVarP(&verbosity.Quiet, "quiet", "q", false, "Only show errors")

	if err := addOptionFlags(cmd.Flags(), v.Settings().Options()); err != nil {
		return nil, err
	}

	cmd.AddCommand(newListCmd(reg))
	cmd.AddCommand(newInspectCmd())

	return cmd, nil
}

// build binds the plugins, resolves the settings and runs the build.
func build(cmd *cobra.Command, v *vm.VM, hypervisor, distro string) error {
	if err := v.SetHypervisor(hypervisor); err != nil {
		return err
	}
	if err := v.SetDistro(distro); err != nil {
		return err
	}

	if err := applyChangedFlags(cmd.Flags(), v.Settings()); err != nil {
		return err
	}

	// Only a file named with -c has to exist.
	if err := v.LoadConfigFile(v.Settings().Get(config.OptAltConfig), v.Settings().IsExplicit(config.OptAltConfig)); err != nil {
		return err
	}

	if err := v.Create(cmd.Context()); err != nil {
		return fmt.Errorf("failed to build %s image for %s: %w", distro, hypervisor, err)
	}

	for _, path := range v.ResultFiles() {
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}
