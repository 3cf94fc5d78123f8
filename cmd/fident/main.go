package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info (injected at build time)
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fident",
		Short:         "Local wallet and ledger identity binding",
		Long:          `fident keeps a wallet seed on this device, registers its address with the identity backend and anchors a DID document for it on Solana.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(bindCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(rekeyCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(devBackendCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
