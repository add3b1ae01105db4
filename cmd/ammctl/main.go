package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammctl",
		Short:        "Inspect and simulate pools offline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("pools-file", "./configs/pools.json", "pool definitions (JSON)")
	root.PersistentFlags().Uint64("tolerance-bp", 0, "tolerance for pools without tolerance_bp, 0 keeps the engine default")
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "pool-id",
		Short: "Print the ID of every pool in the file",
		Args:  cobra.NoArgs,
		RunE:  runPoolID,
	})

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Print the marginal and effective price of a token pair",
		Args:  cobra.NoArgs,
		RunE:  runPrice,
	}
	pairFlags(priceCmd)
	priceCmd.Flags().String("size", "1", "trade size for the effective price")
	root.AddCommand(priceCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap without changing the pool",
		Args:  cobra.NoArgs,
		RunE:  runQuote,
	}
	pairFlags(quoteCmd)
	quoteCmd.Flags().String("amount", "", "amount in, in token units")
	quoteCmd.Flags().String("min-out", "", "minimum amount out")
	quoteCmd.Flags().Uint64("max-impact-bp", 0, "maximum price impact in bps, 0 disables the cap")
	root.AddCommand(quoteCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Execute a sequence of swaps on an in-memory copy of a pool",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("pool", "", "pool name or ID")
	simulateCmd.Flags().StringArray("trade", nil, "IN:OUT:AMOUNT, repeatable, executed in order")
	simulateCmd.Flags().Bool("keep-going", false, "continue after a failed trade")
	root.AddCommand(simulateCmd)

	root.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check every pool against its invariant",
		Args:  cobra.NoArgs,
		RunE:  runVerify,
	})

	return root
}

func pairFlags(cmd *cobra.Command) {
	cmd.Flags().String("pool", "", "pool name or ID")
	cmd.Flags().String("in", "", "input token symbol or index")
	cmd.Flags().String("out", "", "output token symbol or index")
}
