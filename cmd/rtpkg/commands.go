package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/service"
)

func newListCmd(a *app) *cobra.Command {
	var (
		families []string
		perPage  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runtime packages available from the release catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected, err := parseFamilies(families)
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context) error {
				list, err := a.svc.List(ctx, service.ListRequest{Families: selected, PerPage: perPage})
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runtime packages found.")
					return nil
				}
				return printAvailable(cmd, list)
			})
		},
	}

	cmd.Flags().StringSliceVarP(&families, "family", "f", nil, "release family to query (repeatable)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "releases to fetch per family")

	return cmd
}

func newInstallCmd(a *app) *cobra.Command {
	var (
		overwrite bool
		families  []string
	)

	cmd := &cobra.Command{
		Use:   "install VERSION",
		Short: "Download, verify and install a runtime package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parseFamilies(families)
			if err != nil {
				return err
			}

			return a.run(cmd, func(ctx context.Context) error {
				bar := newProgressPrinter(cmd.ErrOrStderr(), isTerminal(os.Stderr))
				res, err := a.svc.Install(ctx, service.InstallRequest{
					Version:    args[0],
					Overwrite:  overwrite,
					Families:   selected,
					OnProgress: bar.Report,
				})
				bar.Done()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Installed %s to %s (%s)\n", res.Entry.Version, res.Path, humanBytes(res.Entry.DiskBytes))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing install of the same version")
	cmd.Flags().StringSliceVarP(&families, "family", "f", nil, "release family to look the version up in (repeatable)")

	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove VERSION",
		Short: "Remove an installed runtime package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := a.svc.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newInstalledCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installed",
		Short: "List installed runtime packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				entries, err := a.svc.Installed(ctx)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runtime packages installed.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tFAMILY\tSIZE\tINSTALLED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Version, e.Family, humanBytes(e.DiskBytes), e.InstalledAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
}

func printAvailable(cmd *cobra.Command, list []service.Available) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tFAMILY\tRELEASED\tSIZE\tSTATUS")
	for _, v := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.Version, v.Family, v.ReleaseDate, humanBytes(v.ExpectedDownloadBytes), status(v))
	}
	return w.Flush()
}

func status(v service.Available) string {
	switch {
	case v.Installed:
		return "installed"
	case !v.Installable():
		return "no archive"
	default:
		return ""
	}
}

