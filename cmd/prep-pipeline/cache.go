// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/prep-pipeline/internal/cache"
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the persistent match cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of cached PubMed answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d cached queries\n", n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached PubMed answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d cached queries\n", n)
		return nil
	},
}

func openCache(cmd *cobra.Command) (*cache.Store, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = loadConfig().Match.CachePath
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no cache configured: set match.cache_path or pass --path", types.ErrConfiguration)
	}
	return cache.NewStore(path)
}

func init() {
	cacheCmd.PersistentFlags().String("path", "", "cache database (default: match.cache_path)")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
