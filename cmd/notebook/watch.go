package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"notebook/api/internal/realtime"
	"notebook/api/internal/syncclient"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var interval, cacheTime, debounce string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the tree in sync and reprint it whenever it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := watchOptions(interval, cacheTime, debounce)
			if err != nil {
				return err
			}
			return runWatch(cmd, flags, opts)
		},
	}
	cmd.Flags().StringVar(&interval, "interval", durationFlagDefault("NOTEBOOK_SYNC_INTERVAL", "30s"), "polling interval")
	cmd.Flags().StringVar(&cacheTime, "cache", durationFlagDefault("NOTEBOOK_SYNC_CACHE", "10s"), "cache lifetime for polled data")
	cmd.Flags().StringVar(&debounce, "debounce", durationFlagDefault("NOTEBOOK_SYNC_DEBOUNCE", "1s"), "window for collapsing push notifications")
	return cmd
}

func watchOptions(interval, cacheTime, debounce string) (syncclient.Options, error) {
	var opts syncclient.Options
	var err error
	if opts.Interval, err = time.ParseDuration(interval); err != nil {
		return opts, fmt.Errorf("interval: %w", err)
	}
	if opts.CacheTime, err = time.ParseDuration(cacheTime); err != nil {
		return opts, fmt.Errorf("cache: %w", err)
	}
	if opts.Debounce, err = time.ParseDuration(debounce); err != nil {
		return opts, fmt.Errorf("debounce: %w", err)
	}
	opts.Immediate = true
	return opts, nil
}

func runWatch(cmd *cobra.Command, flags *globalFlags, opts syncclient.Options) error {
	logger := flags.logger()
	client := flags.client()
	out := cmd.OutOrStdout()

	coordinator := syncclient.NewCoordinator(syncclient.NewCache(), logger)
	defer coordinator.Close()

	tree := syncclient.Subscribe(coordinator, realtime.ResourceTree, client.Tree, opts)
	defer tree.Unsubscribe()

	listener, err := syncclient.NewPushListener(client.BaseURL(), client.Token(), coordinator, logger)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(cmd.Context())
	group.Go(func() error { return listener.Run(ctx) })
	group.Go(func() error {
		var printed time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tree.Changes():
			}
			snap := tree.Snapshot()
			if snap.Loading {
				continue
			}
			if snap.Err != nil {
				fmt.Fprintf(out, "sync error (showing data from %s): %v\n", snap.FetchedAt.Format(time.Kitchen), snap.Err)
			}
			if !snap.HasData || !snap.FetchedAt.After(printed) {
				continue
			}
			printed = snap.FetchedAt
			fmt.Fprintf(out, "\n-- %s --\n", snap.FetchedAt.Format(time.TimeOnly))
			renderTree(out, snap.Data)
		}
	})
	return group.Wait()
}
