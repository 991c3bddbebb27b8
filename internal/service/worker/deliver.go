package worker

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"reelfetch/internal/domain"
)

// Discord message limits
const (
	maxAttachments    = 10
	maxMessageLength  = 2000
	maxUploadBytes    = 25 << 20
	pendingReaction   = "⏳"
	defaultMediaMIME  = "application/octet-stream"
	captionTruncation = "…"
)

// Delivery is one finished extraction to hand back to the requester
type Delivery struct {
	Job       domain.ExtractJob
	Canonical string
	// Result is nil when every strategy failed
	Result domain.Result
}

// Deliverer sends a finished extraction back to the requester.
// A returned error means the job should be retried.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// discordSender is the part of a Discord session delivery needs
type discordSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
}

// DiscordDeliverer uploads media as attachments replying to the request message
type DiscordDeliverer struct {
	session  discordSender
	captions *CaptionResolver
	logger   *slog.Logger
}

// NewDiscordDeliverer creates a deliverer on an authenticated session; captions may be nil
func NewDiscordDeliverer(session *discordgo.Session, captions *CaptionResolver, logger *slog.Logger) *DiscordDeliverer {
	return &DiscordDeliverer{
		session:  session,
		captions: captions,
		logger:   logger,
	}
}

func (d *DiscordDeliverer) Deliver(ctx context.Context, dl Delivery) error {
	defer d.clearPending(ctx, dl.Job)

	files := uploadable(dl.Result, d.logger)
	if len(files) == 0 {
		msg := d.baseMessage(dl.Job)
		msg.Content = mentionPrefix(dl.Job) + domain.UserMessage
		if _, err := d.session.ChannelMessageSendComplex(dl.Job.ChannelID, msg, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to send failure message: %w", err)
		}
		return nil
	}

	caption := resultDescription(dl.Result)
	if caption == "" && d.captions != nil && dl.Canonical != "" {
		caption = d.captions.Resolve(ctx, dl.Canonical)
	}

	sent := 0
	for i, batch := range batches(files, maxAttachments) {
		msg := d.baseMessage(dl.Job)
		if i == 0 {
			msg.Content = truncateCaption(mentionPrefix(dl.Job) + caption)
		}
		if err := d.sendFiles(ctx, dl.Job.ChannelID, msg, batch); err != nil {
			if sent == 0 {
				return err
			}
			// A retry would re-run the whole job and post the earlier batches again
			d.logger.Warn("Partial delivery, not retrying",
				"error", err,
				"channel_id", dl.Job.ChannelID,
				"files_sent", sent,
				"files_total", len(files))
			return nil
		}
		sent += len(batch)
	}

	d.logger.Info("Delivered media",
		"channel_id", dl.Job.ChannelID,
		"files", len(files),
		"result", domain.DescribeResult(dl.Result))
	return nil
}

func (d *DiscordDeliverer) sendFiles(ctx context.Context, channelID string, msg *discordgo.MessageSend, paths []string) error {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeFiles(msg.Files)
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		msg.Files = append(msg.Files, &discordgo.File{
			Name:        filepath.Base(p),
			ContentType: contentType(p),
			Reader:      f,
		})
	}
	defer closeFiles(msg.Files)

	if _, err := d.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}
	return nil
}

func (d *DiscordDeliverer) baseMessage(job domain.ExtractJob) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if job.MessageID != "" {
		msg.Reference = &discordgo.MessageReference{
			MessageID: job.MessageID,
			ChannelID: job.ChannelID,
			GuildID:   job.GuildID,
		}
	} else if job.UserID != "" {
		msg.AllowedMentions.Users = []string{job.UserID}
	}
	return msg
}

// clearPending removes the hourglass the bot left on the request message
func (d *DiscordDeliverer) clearPending(ctx context.Context, job domain.ExtractJob) {
	if job.MessageID == "" {
		return
	}
	if err := d.session.MessageReactionRemove(job.ChannelID, job.MessageID, pendingReaction, "@me", discordgo.WithContext(ctx)); err != nil {
		d.logger.Debug("Failed to remove pending reaction",
			"error", err,
			"message_id", job.MessageID)
	}
}

// LogDeliverer only logs outcomes; used when the worker runs without a Discord token
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a deliverer that writes outcomes to the log
func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, dl Delivery) error {
	if dl.Result == nil {
		d.logger.Info("Extraction failed", "url", dl.Job.URL, "message", domain.UserMessage)
		return nil
	}
	d.logger.Info("Extraction ready",
		"url", dl.Job.URL,
		"canonical_url", dl.Canonical,
		"files", dl.Result.Files(),
		"description", resultDescription(dl.Result))
	return nil
}

// uploadable returns the result files that fit in a Discord upload
func uploadable(result domain.Result, logger *slog.Logger) []string {
	if result == nil {
		return nil
	}
	var out []string
	for _, p := range result.Files() {
		info, err := os.Stat(p)
		if err != nil {
			logger.Warn("Result file missing", "path", p, "error", err)
			continue
		}
		if info.Size() > maxUploadBytes {
			logger.Warn("Result file too large to upload",
				"path", p,
				"size", info.Size())
			continue
		}
		out = append(out, p)
	}
	return out
}

func resultDescription(result domain.Result) string {
	switch r := result.(type) {
	case *domain.VideoResult:
		return r.Description
	case *domain.PhotoSetResult:
		return r.Description
	default:
		return ""
	}
}

func mentionPrefix(job domain.ExtractJob) string {
	if job.MessageID == "" && job.UserID != "" {
		return "<@" + job.UserID + "> "
	}
	return ""
}

func truncateCaption(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLength {
		return s
	}
	return string(r[:maxMessageLength-1]) + captionTruncation
}

func batches(items []string, size int) [][]string {
	var out [][]string
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// videoTypes covers extensions missing from the builtin MIME table
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultMediaMIME
}

func closeFiles(files []*discordgo.File) {
	for _, f := range files {
		if c, ok := f.Reader.(*os.File); ok {
			c.Close()
		}
	}
}
