package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jbweber/vmbuilder/api/v1alpha1"
	"github.com/jbweber/vmbuilder/internal/libvirt"
	"github.com/jbweber/vmbuilder/internal/loader"
	"github.com/jbweber/vmbuilder/internal/metadata"
	"github.com/jbweber/vmbuilder/internal/naming"
	"github.com/jbweber/vmbuilder/internal/output"
	"github.com/jbweber/vmbuilder/internal/status"
)

func newInspectCmd() *cobra.Command {
	var (
		outputFormat string
		noHeaders    bool
		socket       string
	)

	cmd := &cobra.Command{
		Use:   "inspect <dest>",
		Short: "Show how an image was built",
		Long: `Show the build manifest a build left in its destination directory.

With --libvirt the argument is a domain name instead, and the manifest is
read from the metadata of the domain that a kvm or qemu build defined.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML manifest
  -o json   Full JSON manifest
  -o name   Artifact file names, one per line`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := output.ValidateFormat(outputFormat); err != nil {
				return err
			}

			var (
				b   *v1alpha1.ImageBuild
				err error
			)
			if socket != "" {
				b, err = loadFromDomain(cmd.Context(), socket, args[0])
			} else {
				b, err = loader.LoadFromFile(naming.ManifestPath(args[0]))
			}
			if err != nil {
				return err
			}

			switch {
			case !status.IsComplete(b.Status.Phase):
				logrus.Warnf("Build %s did not complete (phase %q)", b.Name, b.Status.Phase)
			case !status.IsTerminal(b.Status.Phase):
				logrus.Warnf("Build %s stopped before its files were handed to the invoking user", b.Name)
			}

			return output.Print(cmd.OutOrStdout(), output.Options{
				Format:    output.Format(outputFormat),
				NoHeaders: noHeaders,
			}, b)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", string(output.FormatTable), "Output format: table, yaml, json, name")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
	cmd.Flags().StringVar(&socket, "libvirt", "", "Read the manifest of the domain from the libvirt daemon listening on SOCKET")

	return cmd
}

func loadFromDomain(ctx context.Context, socket, name string) (*v1alpha1.ImageBuild, error) {
	client, err := libvirt.ConnectWithContext(ctx, socket, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close libvirt connection")
		}
	}()

	l := client.Libvirt()
	domain, err := l.DomainLookupByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}

	if !metadata.Exists(l, domain) {
		return nil, fmt.Errorf("domain %s was not built by vmbuilder", name)
	}
	return metadata.Load(l, domain)
}
