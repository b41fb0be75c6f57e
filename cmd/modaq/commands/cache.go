package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modaq/uploader/internal/cli/output"
	"github.com/modaq/uploader/internal/cli/prompt"
	"github.com/modaq/uploader/internal/cli/timeutil"
	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/config"
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

var (
	cacheStatsOutput string
	cacheClearYes    bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local S3 path cache",
	Long: `Inspect and maintain the local cache of recordings known to exist in S3.

The cache is what lets MODAQ skip re-uploading recordings without asking S3
about every file. It can drift when objects are removed from the bucket by
other tools; 'modaq cache sync' reconciles it against a bucket listing.

These commands open the cache database directly and must not run while the
server is writing to it under heavy load; SQLite serializes writers through
the busy timeout, so brief overlap is safe.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE:  runCacheStats,
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the cache against the S3 bucket",
	Long: `List every recording in the configured bucket and update the cache to
match: objects found in S3 are marked present, cached entries whose object
is gone are marked deleted so the next upload re-transfers them.

Examples:
  # Reconcile against the configured bucket
  modaq cache sync`,
	RunE: runCacheSync,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Invalidate all cache entries for the configured bucket",
	Long: `Mark every cache entry for the configured bucket as unverified.

Subsequent uploads will re-check S3 for each file, so the next bulk scan
after clearing is slow. Use this when the cache is suspected of being wrong.

Examples:
  # Clear with confirmation prompt
  modaq cache clear

  # Clear without prompting
  modaq cache clear --yes`,
	RunE: runCacheClear,
}

func init() {
	cacheStatsCmd.Flags().StringVarP(&cacheStatsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	cacheClearCmd.Flags().BoolVarP(&cacheClearYes, "yes", "y", false, "Skip confirmation prompt")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSyncCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openCache loads settings and opens the cache database they point at.
func openCache() (*cache.Cache, *config.Config, error) {
	cfg, _, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}

	c, err := cache.New(cache.Config{
		Path:        cfg.Cache.Path,
		TTL:         cfg.Cache.PathTTL,
		BusyTimeout: cfg.Cache.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	return c, cfg, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(cacheStatsOutput)
	if err != nil {
		return err
	}

	c, cfg, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	stats, err := c.GetStats(context.Background(), cfg.S3Bucket)
	if err != nil {
		return fmt.Errorf("failed to read cache statistics: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, stats)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, stats)
	}

	pairs := [][2]string{
		{"Bucket", cfg.S3Bucket},
		{"Database", cfg.Cache.Path},
		{"Total entries", strconv.FormatInt(stats.TotalEntries, 10)},
		{"Present in S3", strconv.FormatInt(stats.ExistsCount, 10)},
		{"Marked deleted", strconv.FormatInt(stats.NotExistsCount, 10)},
		{"Expired", strconv.FormatInt(stats.ExpiredCount, 10)},
		{"Entry TTL", (time.Duration(stats.TTLSeconds) * time.Second).String()},
		{"Last full sync", timeutil.FormatLocal(stats.LastFullSync)},
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func runCacheSync(cmd *cobra.Command, args []string) error {
	c, cfg, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if cfg.S3Bucket == "" {
		return fmt.Errorf("no S3 bucket configured\nSet one with 'modaq config set s3_bucket <name>'")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gateway, err := s3gw.New(ctx, cfg.AWSProfile, cfg.AWSRegion)
	if err != nil {
		return fmt.Errorf("failed to connect to S3: %w", err)
	}

	fmt.Printf("Reconciling cache against s3://%s ...\n", cfg.S3Bucket)

	result, err := c.Reconcile(ctx, gateway, cfg.S3Bucket, "")
	if err != nil {
		return fmt.Errorf("cache sync failed: %w", err)
	}

	fmt.Printf("Found %d files in S3, updated %d entries, marked %d as deleted\n",
		result.FilesInS3, result.FilesUpdated, result.FilesRemoved)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, cfg, err := openCache()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if cfg.S3Bucket == "" {
		return fmt.Errorf("no S3 bucket configured\nSet one with 'modaq config set s3_bucket <name>'")
	}

	if !cacheClearYes {
		ok, err := prompt.Confirm(fmt.Sprintf("Invalidate all cache entries for bucket %q?", cfg.S3Bucket), false)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted")
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Aborted")
			return nil
		}
	}

	deleted, err := c.InvalidateBucket(context.Background(), cfg.S3Bucket)
	if err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}

	fmt.Printf("Invalidated %d cache entries for bucket %q\n", deleted, cfg.S3Bucket)
	return nil
}
