package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/scanline/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the result cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache counters as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(c *cache.Cache) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c.Stats())
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached result in the configured namespace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCache(cmd, func(c *cache.Cache) error {
			before := c.Stats().Entries
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", before)
			return err
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func withCache(cmd *cobra.Command, fn func(c *cache.Cache) error) (err error) {
	c, closer, err := openCache(cmd.Context(), globalConfig)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, closer.Close()) }()
	if c == nil {
		return errors.New("caching is disabled (cache.backend is none)")
	}
	return fn(c)
}
