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

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the shared company research cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <company>",
	Short: "Show the cached research for a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookup, err := newCache(st).Get(ctx, args[0])
		if err != nil {
			return err
		}
		if lookup == nil {
			return eris.Errorf("no cache entry for %q", args[0])
		}
		return printJSON(map[string]any{
			"status": lookup.Status,
			"entry":  lookup.Entry,
		})
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <company>",
	Short: "Delete the cached research for a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deleted, err := newCache(st).Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return eris.Errorf("no cache entry for %q", args[0])
		}
		fmt.Printf("deleted cache entry for %q\n", args[0])
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the company cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := newCache(st).Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-load cache entries from a JSON file",
	Long:  "The file holds a JSON array of cache entries. Identities are normalized and confidences clamped on the way in.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		var entries []model.CompanyCacheEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return eris.Wrapf(err, "parse %s", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := newCache(st).Import(ctx, entries)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d cache entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd, cacheDeleteCmd, cacheStatsCmd, cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}
