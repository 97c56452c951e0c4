package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/prep-service/internal/model"
)

var prepFlags struct {
	user            string
	company         string
	objective       string
	contact         string
	contactLinkedIn string
	date            string
}

var prepCmd = &cobra.Command{
	Use:   "prep",
	Short: "Generate a sales prep report for one meeting",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		prep, err := env.Pipeline.Run(ctx, prepFlags.user, model.PrepRequest{
			CompanyName:        prepFlags.company,
			MeetingObjective:   prepFlags.objective,
			ContactPersonName:  prepFlags.contact,
			ContactLinkedInURL: prepFlags.contactLinkedIn,
			MeetingDate:        prepFlags.date,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(prep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	f := prepCmd.Flags()
	f.StringVar(&prepFlags.user, "user", "", "user ID owning the prep")
	f.StringVar(&prepFlags.company, "company", "", "prospect company name")
	f.StringVar(&prepFlags.objective, "objective", "", "meeting objective")
	f.StringVar(&prepFlags.contact, "contact", "", "named meeting contact")
	f.StringVar(&prepFlags.contactLinkedIn, "contact-linkedin", "", "contact LinkedIn URL")
	f.StringVar(&prepFlags.date, "date", "", "meeting date (YYYY-MM-DD)")
	_ = prepCmd.MarkFlagRequired("user")
	_ = prepCmd.MarkFlagRequired("company")
	_ = prepCmd.MarkFlagRequired("objective")

	rootCmd.AddCommand(prepCmd)
}
