package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackms/memtier-go/internal/shared"
)

var (
	promoteDryRun bool
	promoteForce  []string
	promoteTier   string
)

// PromoteCmd runs one promotion cycle from the command line.
var PromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Run a promotion cycle",
	Long: `Analyze the interact and insights tiers and promote qualifying
records. With --dry-run the decisions are printed without moving anything.
With --id (repeatable) the named records are moved to --tier directly,
bypassing scoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		app, err := LoadApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(promoteForce) > 0 {
			result, err := app.Promotion.ForcePromote(ctx, promoteForce, shared.Tier(promoteTier))
			if err != nil {
				return err
			}
			return enc.Encode(result)
		}

		result, err := app.Promotion.Promote(ctx, promoteDryRun)
		if err != nil {
			return err
		}
		return enc.Encode(result)
	},
}

func init() {
	PromoteCmd.Flags().BoolVar(&promoteDryRun, "dry-run", false, "analyze without moving records")
	PromoteCmd.Flags().StringSliceVar(&promoteForce, "id", nil, "record id to move directly (repeatable)")
	PromoteCmd.Flags().StringVar(&promoteTier, "tier", string(shared.TierInsights), "target tier for --id moves")
}
