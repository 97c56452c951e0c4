package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prep-service/internal/model"
)

var researchFlags struct {
	contact string
	noCache bool
}

var researchCmd = &cobra.Command{
	Use:   "research <company>",
	Short: "Run the research agent for a company without synthesizing a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		companyName := args[0]

		if !researchFlags.noCache {
			lookup, err := env.Cache.Get(ctx, companyName)
			if err == nil && lookup != nil && lookup.Fresh() {
				return printJSON(lookup.Entry)
			}
		}

		result := env.Researcher.Research(ctx, model.PrepRequest{
			CompanyName:       companyName,
			MeetingObjective:  "standalone research",
			ContactPersonName: researchFlags.contact,
		})
		if !result.Success {
			return eris.Errorf("research failed: %s", result.Error)
		}
		env.Cache.Put(ctx, companyName, result.ResearchData, result.ConfidenceScore, result.SourcesUsed)

		return printJSON(result)
	},
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	f := researchCmd.Flags()
	f.StringVar(&researchFlags.contact, "contact", "", "named contact to research")
	f.BoolVar(&researchFlags.noCache, "no-cache", false, "skip the cache and re-research")

	rootCmd.AddCommand(researchCmd)
}
