package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmbuilder/internal/config"
	"github.com/jbweber/vmbuilder/internal/vm"
)

func newListCmd(reg *vm.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available distros and hypervisors",
		Long: `List the distros and hypervisors vmbuilder can build with, and the
options each of them adds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPlugins(cmd.OutOrStdout(), reg)
		},
	}
}

func printPlugins(out io.Writer, reg *vm.Registry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "DISTROS")
	for _, name := range reg.DistroNames() {
		printPlugin(w, name, reg.DistroOptions(name))
	}

	_, _ = fmt.Fprintln(w, "\nHYPERVISORS")
	for _, name := range reg.HypervisorNames() {
		printPlugin(w, name, reg.HypervisorOptions(name))
	}

	return w.Flush()
}

func printPlugin(w io.Writer, name string, opts []config.Option) {
	_, _ = fmt.Fprintf(w, "  %s\n", name)
	for _, opt := range opts {
		flag := "--" + opt.Name
		if opt.Default != "" {
			flag += "=" + opt.Default
		}
		_, _ = fmt.Fprintf(w, "    %s\t%s\n", flag, opt.Help)
	}
}
