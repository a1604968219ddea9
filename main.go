package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okx/txloadgen/utils"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "txloadgen",
		Short: "Transaction load generator for EVM JSON-RPC nodes",
		Long: `A command-line tool that keeps submitting signed native transfers to an EVM node,
one per interval, until interrupted.

Each iteration probes the node, fetches the sender nonce, signs a legacy transfer
and broadcasts it with eth_sendRawTransaction. Running txloadgen without a
subcommand is the same as "txloadgen run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd)
		},
	}
	utils.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(
		runCmd(),
		chainsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit transfers until interrupted",
		Long: `Submit one signed transfer per interval until interrupted (Ctrl+C).

Configuration is read from flags, TXLOADGEN_* environment variables, an optional
config file (-f) and a .env file in the working directory. The private key is
taken from --private-key-file, TXLOADGEN_PRIVATE_KEY or PRIVATE_KEY, and is
prompted for when none is set and a terminal is attached.

Example:
  txloadgen run -e http://127.0.0.1:8545 --private-key-file ./key.txt
  txloadgen run --chain apechain-testnet --interval 1s -n 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd)
		},
	}
	utils.RegisterFlags(cmd.Flags())

	return cmd
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List the built-in chain catalog",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.PrintChains(cmd.OutOrStdout(), utils.Chains)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "txloadgen %s\n", version)
		},
	}
}
