package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// StatsCmd prints engine statistics as JSON.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show engine statistics",
	Long:  `Print storage, resource, and promotion statistics as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := LoadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		usage, err := app.Resources.ResourceUsage(ctx)
		if err != nil {
			return err
		}
		tiers, err := app.Promotion.Statistics(ctx)
		if err != nil {
			return err
		}
		health, err := app.Repo.HealthCheck(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"storage":   health,
			"usage":     usage,
			"limits":    app.Resources.GetLimits(),
			"tiers":     tiers,
			"search":    app.Search.Metrics(),
			"resources": app.Resources.Metrics(),
		})
	},
}
