package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"reelfetch/internal/domain"
)

const (
	// pendingReaction marks a message whose media is being fetched; the worker removes it
	pendingReaction = "⏳"
	// maxURLsPerMessage bounds how many jobs one message can create
	maxURLsPerMessage = 5
	enqueueTimeout    = 5 * time.Second
)

// onMessageCreate queues an extraction for every supported URL in a message
func (s *BotService) onMessageCreate(session *discordgo.Session, message *discordgo.MessageCreate) {
	if message.Author == nil || message.Author.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	queued := s.enqueueFromMessage(ctx, message.Message)
	if queued == 0 {
		return
	}

	if err := session.MessageReactionAdd(message.ChannelID, message.ID, pendingReaction); err != nil {
		s.logger.Warn("Failed to add pending reaction",
			"error", err,
			"message_id", message.ID)
	}
}

// enqueueFromMessage returns how many jobs were queued for the message
func (s *BotService) enqueueFromMessage(ctx context.Context, message *discordgo.Message) int {
	urls := s.detector.DetectURLs(message.Content)
	if len(urls) == 0 {
		return 0
	}
	if len(urls) > maxURLsPerMessage {
		s.logger.Info("Too many URLs in message, keeping the first ones",
			"message_id", message.ID,
			"found", len(urls),
			"kept", maxURLsPerMessage)
		urls = urls[:maxURLsPerMessage]
	}

	userID := ""
	if message.Author != nil {
		userID = message.Author.ID
	}

	queued := 0
	for _, u := range urls {
		job := domain.ExtractJob{
			RequestID: uuid.NewString(),
			URL:       u.URL,
			Platform:  u.Platform,
			Quality:   domain.QualityStandard,
			ChannelID: message.ChannelID,
			MessageID: message.ID,
			GuildID:   message.GuildID,
			UserID:    userID,
		}
		if err := s.enqueue(ctx, job); err != nil {
			s.logger.Error("Failed to queue extraction",
				"error", err,
				"url", u.URL,
				"message_id", message.ID)
			continue
		}
		queued++
	}
	return queued
}

func (s *BotService) enqueue(ctx context.Context, job domain.ExtractJob) error {
	if err := s.queueRepo.Enqueue(ctx, domain.JobTypeExtractMedia, job); err != nil {
		return fmt.Errorf("failed to enqueue extract_media job: %w", err)
	}
	s.logger.Info("Extraction queued",
		"request_id", job.RequestID,
		"url", job.URL,
		"platform", job.Platform,
		"quality", job.Quality)
	return nil
}
