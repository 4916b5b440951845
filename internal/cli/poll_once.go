package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ghbridge/internal/app"
)

func newPollOnceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "poll-once",
		Short: "Run a single poll cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, app.Options{ConfigPath: flags.configPath, Version: version})
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.RunOnce(ctx)
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if res.Err != nil {
				return fmt.Errorf("poll failed: %w", res.Err)
			}
			return nil
		},
	}
}
