package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		client  *Client
	)

	root := &cobra.Command{
		Use:           "appscmd",
		Short:         "Manage apps through the apps daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = NewClient(server, timeout)
		},
	}

	defaultServer := os.Getenv("APPS_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	root.PersistentFlags().StringVar(&server, "server", defaultServer, "Daemon base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Request timeout")

	get := func() *Client { return client }
	root.AddCommand(
		listCmd(get),
		getCmd(get),
		installCmd(get),
		updateCmd(get),
		checkCmd(get),
		checkAllCmd(get),
		uninstallCmd(get),
		statusCmd(get, "enable"),
		statusCmd(get, "disable"),
	)
	return root
}
