package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reelfetch/internal/domain"
	"reelfetch/internal/service/extractor"
)

// extractOutput is what `reelfetch extract` prints
type extractOutput struct {
	RequestURL   string            `json:"request_url"`
	CanonicalURL string            `json:"canonical_url,omitempty"`
	Platform     domain.Platform   `json:"platform"`
	Quality      domain.Quality    `json:"quality"`
	Strategy     string            `json:"strategy,omitempty"`
	Kind         domain.ResultKind `json:"kind"`
	Files        []string          `json:"files,omitempty"`
	Description  string            `json:"description,omitempty"`
	Failures     []*domain.Failure `json:"failures"`
	DurationMS   int64             `json:"duration_ms"`
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		platform string
		quality  string
		cleanup  bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Run the extraction chain for one URL and print the outcome as JSON",
		Example: `  reelfetch extract https://youtube.com/shorts/abc123
  reelfetch extract --quality best https://www.instagram.com/reel/Cx1AbC/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			var hint domain.Platform
			if platform != "" {
				hint = domain.ParsePlatform(platform)
			}
			req := domain.NewMediaRequest(args[0], hint, domain.ParseQuality(quality))

			pools := extractor.NewPools(extractor.PoolConfig{
				BrowserBin: a.cfg.Extraction.BrowserBin,
				Headless:   a.cfg.Extraction.BrowserHeadless,
				MaxPages:   a.cfg.Extraction.BrowserMaxPages,
			}, a.log)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := pools.CloseAll(closeCtx); err != nil {
					a.log.Warn("Failed to close browser pools", "error", err)
				}
			}()

			chain := extractor.NewDefaultChain(a.cfg.Extraction, pools, a.log)
			report := chain.Run(ctx, req)

			if err := printReport(cmd.OutOrStdout(), req, report); err != nil {
				return err
			}

			if cleanup && report.Result != nil {
				if err := extractor.RemoveResultFiles(report.Result); err != nil {
					a.log.Warn("Failed to remove result files", "error", err)
				}
			}

			if err := report.Err(); err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Platform hint: youtube | instagram | other (detected from the URL when empty)")
	cmd.Flags().StringVar(&quality, "quality", string(domain.QualityStandard), "Video quality: standard | best")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Delete downloaded files after printing the result")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "Overall extraction timeout")
	return cmd
}

func newExtractOutput(req domain.MediaRequest, report *extractor.Report) *extractOutput {
	out := &extractOutput{
		RequestURL: req.RawURL,
		Platform:   req.Platform,
		Quality:    req.Quality,
		Strategy:   report.Strategy,
		Kind:       domain.ResultEmpty,
		Failures:   report.Failures,
		DurationMS: report.Duration.Milliseconds(),
	}
	if out.Failures == nil {
		out.Failures = []*domain.Failure{}
	}
	if report.Canonical != nil {
		out.CanonicalURL = report.Canonical.Value
		out.Platform = report.Canonical.Platform
	}

	switch r := report.Result.(type) {
	case *domain.VideoResult:
		out.Kind = r.Kind()
		out.Files = r.Files()
		out.Description = r.Description
	case *domain.PhotoSetResult:
		out.Kind = r.Kind()
		out.Files = r.Files()
		out.Description = r.Description
	}
	return out
}

func printReport(w io.Writer, req domain.MediaRequest, report *extractor.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(newExtractOutput(req, report)); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
