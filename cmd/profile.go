package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prep-service/internal/model"
)

var profileUser string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage seller profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's seller profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profile, err := st.GetUserProfile(ctx, profileUser)
		if err != nil {
			return err
		}
		return printJSON(profile)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <file>",
	Short: "Set a user's seller profile from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var profile model.UserProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}
		if profile.CompanyName == "" {
			return eris.New("profile company_name is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		if err := st.PutUserProfile(ctx, profileUser, profile); err != nil {
			return err
		}
		fmt.Printf("profile saved for user %s\n", profileUser)
		return nil
	},
}

func init() {
	profileCmd.PersistentFlags().StringVar(&profileUser, "user", "", "user ID")
	_ = profileCmd.MarkPersistentFlagRequired("user")
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
