package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"rechtstreeks/internal/client"
	"rechtstreeks/internal/domain"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <case-id> <summons-id>",
		Short: "Follow a summons until no section is generating",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.client()
			if err != nil {
				return err
			}
			return runWatch(cmd, ctx, api, args[0], args[1])
		},
	}
}

// runWatch prints the section table on every change and returns once a fetched list shows
// no generation in flight.
func runWatch(cmd *cobra.Command, ctx *commandContext, api *client.Client, caseID, summonsID string) error {
	interval, err := ctx.pollInterval()
	if err != nil {
		return err
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	watchCtx, cancel := context.WithCancel(parent)
	defer cancel()

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	var (
		once     sync.Once
		done     = make(chan struct{})
		finalErr error
		last     string
	)
	finish := func(err error) {
		once.Do(func() {
			finalErr = err
			close(done)
		})
	}

	var poller *client.Poller
	poller = client.NewPoller(client.SectionFetcher(api, caseID, summonsID), interval, func(sections []domain.Section) {
		if ctx.json() {
			_ = writeJSON(cmd, sections)
		} else if view := renderSections(sections, colorize); view != last {
			last = view
			fmt.Fprintf(out, "%s\n%s\n", time.Now().Format("15:04:05"), view)
		}
		if !domain.AnyGenerating(sections) {
			finish(nil)
		}
	})
	poller.OnError = func(err error) {
		if errors.Is(err, client.ErrUnauthorized) || !poller.Running() {
			finish(err)
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "refresh failed: %v\n", err)
	}

	poller.Sync(watchCtx)
	select {
	case <-done:
	case <-watchCtx.Done():
		finish(watchCtx.Err())
	}
	poller.Close()
	cancel()
	poller.Wait()
	return finalErr
}
