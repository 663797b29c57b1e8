package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/invest-engine/invest"
)

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one manual maturity sweep and exit",
		Long: `Settles every active investment whose maturity date is today or
earlier, then prints the summary as JSON. Exits non-zero if any
settlement failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runSweep(ctx, *configPath)
		},
	}
}

func runSweep(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	sum, err := a.sweeper.Sweep(ctx, invest.TriggerManual)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d settlements failed", sum.Failed, sum.Processed+sum.Skipped+sum.Failed)
	}
	return nil
}
