package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
)

func listCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client().List(cmd.Context())
			if err != nil {
				return err
			}
			printApps(cmd.OutOrStdout(), list.Apps)
			return nil
		},
	}
}

func getCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <app-id>",
		Short: "Show one installed app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printApps(cmd.OutOrStdout(), []registry.AppRecord{*rec})
			return nil
		},
	}
}

func installCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "install <update-url>",
		Short: "Install the app published at an update manifest URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Install(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s\n", res.Record.ID, res.Record.Version)
			return nil
		},
	}
}

func updateCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "update <app-id>",
		Short: "Apply the published update of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Update(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.UpToDate {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date (%s)\n", res.Record.ID, res.Record.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s to %s\n", res.Record.ID, res.Record.Version)
			return nil
		},
	}
}

func checkCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "check <app-id>",
		Short: "Check whether an update is available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := client().Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case !check.Available:
				fmt.Fprintf(out, "%s is up to date (%s)\n", check.AppID, check.CurrentVersion)
			case !check.Compatible:
				fmt.Fprintf(out, "%s: %s is published but cannot be applied: %s\n", check.AppID, check.AvailableVersion, check.Reason)
			default:
				fmt.Fprintf(out, "%s: update available %s -> %s\n", check.AppID, check.CurrentVersion, check.AvailableVersion)
			}
			return nil
		},
	}
}

func checkAllCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "check-all",
		Short: "Run an update sweep over every installed app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := client().CheckAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d available=%d updated=%d skipped=%d failed=%d\n",
				sum.Checked, sum.Available, sum.Updated, sum.Skipped, sum.Failed)
			return nil
		},
	}
}

func uninstallCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <app-id>",
		Aliases: []string{"remove"},
		Short:   "Uninstall an app",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().Uninstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
			return nil
		},
	}
}

func statusCmd(client func() *Client, verb string) *cobra.Command {
	status := registry.StatusEnabled
	if verb == "disable" {
		status = registry.StatusDisabled
	}
	return &cobra.Command{
		Use:   verb + " <app-id>",
		Short: fmt.Sprintf("Set an app %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := client().SetStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", rec.ID, rec.Status)
			return nil
		},
	}
}

func printApps(w io.Writer, apps []registry.AppRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATE\tSTATUS")
	for _, rec := range apps {
		name := ""
		if rec.Manifest != nil {
			name = rec.Manifest.Name()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.ID, name, rec.Version, rec.State, rec.Status)
	}
	tw.Flush()
}
