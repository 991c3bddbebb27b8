package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelfetch/internal/domain"
	"reelfetch/internal/service/extractor"
)

const defaultCheckURL = "https://www.youtube.com/"

// newBrowserCheckCmd launches one browser pool and loads a page through it,
// to verify a deployment's browser binary before the worker depends on it
func newBrowserCheckCmd(a *app) *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "browser-check [url]",
		Short: "Launch the browser pool and load a page through it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultCheckURL
			if len(args) == 1 {
				target = args[0]
			}

			ext := a.cfg.Extraction
			pool := extractor.NewPool(extractor.PoolConfig{
				Platform:   domain.ParsePlatform(platform),
				BrowserBin: ext.BrowserBin,
				Headless:   ext.BrowserHeadless,
				MaxPages:   1,
			}, a.log)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := pool.Close(ctx); err != nil {
					a.log.Warn("Failed to close browser pool", "error", err)
				}
			}()

			out := cmd.OutOrStdout()
			ctx, cancel := context.WithTimeout(cmd.Context(), ext.NavigationTimeout+ext.SettleDelay+30*time.Second)
			defer cancel()

			start := time.Now()
			if err := pool.Start(ctx); err != nil {
				return fmt.Errorf("browser did not start: %w", err)
			}
			fmt.Fprintf(out, "browser started in %v\n", time.Since(start).Round(time.Millisecond))

			session, err := pool.Acquire(ctx)
			if err != nil {
				return err
			}
			defer session.Release()

			navCtx, navCancel := context.WithTimeout(ctx, ext.NavigationTimeout)
			defer navCancel()
			start = time.Now()
			if err := session.Page.Navigate(navCtx, target); err != nil {
				return fmt.Errorf("failed to navigate after %v: %w", time.Since(start).Round(time.Millisecond), err)
			}
			if err := session.Page.WaitSettle(navCtx, ext.SettleDelay); err != nil {
				return fmt.Errorf("page did not settle: %w", err)
			}

			title, finalURL, err := session.Page.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "loaded in %v\ntitle: %s\nurl:   %s\n", time.Since(start).Round(time.Millisecond), title, finalURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", string(domain.PlatformYouTube), "Which platform's browser profile to use")
	return cmd
}
