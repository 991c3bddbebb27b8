package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"reelfetch/internal/config"
	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/urldetector"
)

// BotService turns Discord messages and slash commands into extraction jobs
type BotService struct {
	config    *config.Config
	logger    *slog.Logger
	session   *discordgo.Session
	queueRepo domain.QueueRepository
	detector  *urldetector.Detector
}

// New creates a new bot service
func New(
	config *config.Config,
	logger *slog.Logger,
	queueRepo domain.QueueRepository,
) (*BotService, error) {
	session, err := discordgo.New("Bot " + config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	s := &BotService{
		config:    config,
		logger:    logger,
		session:   session,
		queueRepo: queueRepo,
		detector:  urldetector.New(),
	}
	s.registerHandlers()

	return s, nil
}

// Start connects to Discord and blocks until ctx is cancelled
func (s *BotService) Start(ctx context.Context) error {
	s.logger.Info("Starting Discord bot...")

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	s.logger.Info("Discord bot connected", "platforms", s.detector.GetSupportedPlatforms())

	<-ctx.Done()

	s.logger.Info("Shutting down Discord bot...")
	return s.Stop()
}

func (s *BotService) Stop() error {
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord connection: %w", err)
	}
	s.logger.Info("Discord bot stopped")
	return nil
}

func (s *BotService) registerHandlers() {
	s.session.AddHandler(s.onReady)
	s.session.AddHandler(s.onMessageCreate)
	s.session.AddHandler(s.onInteractionCreate)
}

// onReady registers slash commands once the gateway session is up
func (s *BotService) onReady(session *discordgo.Session, ready *discordgo.Ready) {
	s.logger.Info("Bot is ready",
		"username", ready.User.Username,
		"guilds", len(ready.Guilds))

	if err := s.registerCommands(); err != nil {
		s.logger.Error("Failed to register slash commands", "error", err)
	}

	if err := session.UpdateWatchStatus(0, "for reels and shorts"); err != nil {
		s.logger.Warn("Failed to set bot status", "error", err)
	}
}
