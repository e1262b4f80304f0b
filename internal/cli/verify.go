package cli

import (
	"context"
	"encoding/json"
	"io"

	"funquiz-service/internal/config"
	"funquiz-service/internal/logging"
	"github.com/spf13/cobra"
)

// NewVerifyCmd prints what an address has created and completed.
func NewVerifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <address>",
		Short: "Print a player's quiz activity as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), *configPath, args[0], cmd.OutOrStdout())
		},
	}
}

func runVerify(ctx context.Context, configPath, address string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.services.Players.Summary(ctx, address)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
