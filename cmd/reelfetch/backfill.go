package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/urldetector"
	"reelfetch/internal/repository/redis"
)

// messageSource is the part of a Discord session the backfill reads
type messageSource interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// jobQueue is the part of the queue the backfill writes to
type jobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) error
}

// Backfiller queues extractions for links posted while the bot was offline
type Backfiller struct {
	discord  messageSource
	queue    jobQueue
	detector *urldetector.Detector
	logger   *slog.Logger

	channelID string
	guildID   string
	limit     int
	batchSize int
	beforeID  string
	afterID   string
	dryRun    bool
	// pause between history pages
	pageDelay time.Duration
}

// BackfillStats tracks statistics for one backfill run
type BackfillStats struct {
	MessagesScanned int `json:"messages_scanned"`
	URLsDetected    int `json:"urls_detected"`
	AlreadyAnswered int `json:"already_answered"`
	JobsQueued      int `json:"jobs_queued"`
	Errors          int `json:"errors"`
}

func newBackfillCmd(a *app) *cobra.Command {
	b := &Backfiller{pageDelay: 100 * time.Millisecond}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Queue extractions for links in a channel's message history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if b.batchSize < 1 || b.batchSize > 100 {
				return fmt.Errorf("--batch must be between 1 and 100")
			}
			if err := a.cfg.ValidateForBot(); err != nil {
				return err
			}

			ctx := cmd.Context()
			session, err := discordgo.New("Bot " + a.cfg.DiscordToken)
			if err != nil {
				return fmt.Errorf("failed to create Discord session: %w", err)
			}
			if _, err := session.User("@me", discordgo.WithContext(ctx)); err != nil {
				return fmt.Errorf("failed to authenticate with Discord: %w", err)
			}

			redisClient, err := redis.NewClient(ctx, a.cfg.RedisURL, a.log)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			b.discord = session
			b.queue = redis.NewQueueRepository(redisClient, a.log)
			b.detector = urldetector.New()
			b.logger = a.log

			stats, err := b.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(),
				"scanned %d messages, %d links, %d already answered, %d queued, %d errors\n",
				stats.MessagesScanned, stats.URLsDetected, stats.AlreadyAnswered, stats.JobsQueued, stats.Errors)
			return err
		},
	}

	cmd.Flags().StringVar(&b.channelID, "channel", "", "Discord channel ID to scan (required)")
	cmd.Flags().StringVar(&b.guildID, "guild", "", "Discord guild ID the channel belongs to")
	cmd.Flags().IntVar(&b.limit, "limit", 0, "Maximum number of messages to scan (0 = no limit)")
	cmd.Flags().IntVar(&b.batchSize, "batch", 100, "Messages per Discord API call (max 100)")
	cmd.Flags().StringVar(&b.beforeID, "before", "", "Only scan messages before this message ID")
	cmd.Flags().StringVar(&b.afterID, "after", "", "Only scan messages after this message ID")
	cmd.Flags().BoolVar(&b.dryRun, "dry-run", false, "Print what would be queued without queuing")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

// Run scans the channel history and queues one job per unanswered link
func (b *Backfiller) Run(ctx context.Context) (*BackfillStats, error) {
	messages, err := b.fetchMessages(ctx)
	if err != nil {
		return &BackfillStats{}, fmt.Errorf("failed to fetch messages: %w", err)
	}
	b.logger.Info("Fetched channel history", "channel_id", b.channelID, "messages", len(messages))

	return b.processMessages(ctx, messages), nil
}

// fetchMessages pages backwards through the channel, newest first
func (b *Backfiller) fetchMessages(ctx context.Context) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	beforeID := b.beforeID

	for ctx.Err() == nil {
		batch, err := b.discord.ChannelMessages(b.channelID, b.batchSize, beforeID, b.afterID, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)

		if b.limit > 0 && len(all) >= b.limit {
			all = all[:b.limit]
			break
		}
		if len(batch) < b.batchSize {
			break
		}
		beforeID = batch[len(batch)-1].ID

		select {
		case <-ctx.Done():
		case <-time.After(b.pageDelay):
		}
	}
	return all, ctx.Err()
}

func (b *Backfiller) processMessages(ctx context.Context, messages []*discordgo.Message) *BackfillStats {
	stats := &BackfillStats{}
	answered := answeredMessages(messages)

	for _, message := range messages {
		if ctx.Err() != nil {
			b.logger.Warn("Backfill interrupted", "scanned", stats.MessagesScanned)
			return stats
		}
		stats.MessagesScanned++

		if message.Author == nil || message.Author.Bot {
			continue
		}

		urls := b.detector.DetectURLs(cleanMarkdownLinks(message.Content))
		stats.URLsDetected += len(urls)
		if len(urls) == 0 {
			continue
		}
		if answered[message.ID] {
			stats.AlreadyAnswered += len(urls)
			continue
		}

		for _, u := range urls {
			if isRootURL(u.URL) {
				continue
			}
			job := domain.ExtractJob{
				RequestID: uuid.NewString(),
				URL:       u.URL,
				Platform:  u.Platform,
				Quality:   domain.QualityStandard,
				ChannelID: message.ChannelID,
				MessageID: message.ID,
				GuildID:   b.guildID,
				UserID:    message.Author.ID,
			}

			if b.dryRun {
				b.logger.Info("[DRY RUN] Would queue extraction",
					"url", job.URL,
					"platform", job.Platform,
					"message_id", message.ID)
				stats.JobsQueued++
				continue
			}

			if err := b.queue.Enqueue(ctx, domain.JobTypeExtractMedia, job); err != nil {
				b.logger.Error("Failed to queue extraction",
					"error", err,
					"url", job.URL,
					"message_id", message.ID)
				stats.Errors++
				continue
			}
			stats.JobsQueued++
		}
	}
	return stats
}

// answeredMessages returns the IDs of messages a bot has already replied to
func answeredMessages(messages []*discordgo.Message) map[string]bool {
	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Author != nil && m.Author.Bot && m.MessageReference != nil {
			answered[m.MessageReference.MessageID] = true
		}
	}
	return answered
}

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^\)]+)\)`)
	angleLink    = regexp.MustCompile(`<(https?://[^>]+)>`)
)

// cleanMarkdownLinks turns [text](url) and <url> into bare URLs and drops
// zero-width characters that break URL detection
func cleanMarkdownLinks(content string) string {
	cleaned := markdownLink.ReplaceAllString(content, " $2 ")
	cleaned = angleLink.ReplaceAllString(cleaned, "$1")
	cleaned = strings.NewReplacer(
		"\u200B", "",
		"\u200C", "",
		"\u200D", "",
		"\uFEFF", "",
	).Replace(cleaned)
	return strings.TrimSpace(cleaned)
}

// isRootURL reports whether a URL is a bare host without any content path
func isRootURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return strings.Trim(u.Path, "/") == ""
}
