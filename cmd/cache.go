package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the provider response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete cache entries that expired before a cutoff",
	Long:  "Expired entries are refetched on their next lookup and never deleted by a run. Prune removes rows that expired more than --older-than ago.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		return runCachePrune(cmd.Context(), cfg, olderThan, time.Now().UTC(), os.Stdout)
	},
}

// runCachePrune removes store cache rows whose expiry is before now-olderThan.
func runCachePrune(ctx context.Context, c *config.Config, olderThan time.Duration, now time.Time, out io.Writer) error {
	switch c.Cache.Backend {
	case "redis":
		_, _ = fmt.Fprintln(out, "redis cache entries expire on their own; nothing to prune")
		return nil
	case "memory":
		_, _ = fmt.Fprintln(out, "memory cache is not persisted; nothing to prune")
		return nil
	}
	if olderThan < 0 {
		return eris.New("--older-than must be >= 0")
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	before := now.Add(-olderThan)
	n, err := st.PruneCache(ctx, before)
	if err != nil {
		return eris.Wrap(err, "cache prune")
	}
	zap.L().Info("cache pruned", zap.Int64("deleted", n), zap.Time("expired_before", before))
	_, _ = fmt.Fprintf(out, "deleted %d cache entries expired before %s\n", n, before.Format(time.RFC3339))
	return nil
}

func init() {
	cachePruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "keep expired entries younger than this")
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
