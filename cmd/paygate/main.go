// File: cmd/paygate/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

type rootFlags struct {
	configPath string
	dev        bool
}

func main() {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "paygate",
		Short:         "Payment gateway orchestration and token ledger reconciliation",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "developer mode: console logs, unredacted secrets")

	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(reconcileCmd(flags))
	rootCmd.AddCommand(auditCmd(flags))
	rootCmd.AddCommand(seedCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
