package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"reelfetch/internal/domain"
)

// Command definitions
var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "fetch",
		Description: "Download the video or photos behind a YouTube or Instagram link",
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "url",
				Description: "Link to a reel, post or short",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:        "quality",
				Description: "Video quality",
				Type:        discordgo.ApplicationCommandOptionString,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "standard", Value: string(domain.QualityStandard)},
					{Name: "best", Value: string(domain.QualityBest)},
				},
			},
		},
	},
}

// registerCommands registers slash commands with Discord
func (s *BotService) registerCommands() error {
	// Global commands take up to an hour to propagate
	_, err := s.session.ApplicationCommandBulkOverwrite(s.session.State.User.ID, "", commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	s.logger.Info("Slash commands registered", "count", len(commands))
	return nil
}

// onInteractionCreate handles slash command interactions
func (s *BotService) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	command := interaction.ApplicationCommandData()
	var response *discordgo.InteractionResponse
	switch command.Name {
	case "fetch":
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		response = s.handleFetchCommand(ctx, interaction.Interaction)
		cancel()
	default:
		response = ephemeral("Unknown command")
	}

	if err := session.InteractionRespond(interaction.Interaction, response); err != nil {
		s.logger.Error("Failed to respond to interaction", "error", err, "command", command.Name)
	}
}

// handleFetchCommand queues one extraction; the worker answers in the channel
// with a mention since there is no message to reply to
func (s *BotService) handleFetchCommand(ctx context.Context, interaction *discordgo.Interaction) *discordgo.InteractionResponse {
	rawURL, quality := fetchOptions(interaction.ApplicationCommandData().Options)

	urls := s.detector.DetectURLs(rawURL)
	if len(urls) == 0 {
		return ephemeral("❌ That doesn't look like a YouTube or Instagram link")
	}

	job := domain.ExtractJob{
		RequestID: uuid.NewString(),
		URL:       urls[0].URL,
		Platform:  urls[0].Platform,
		Quality:   quality,
		ChannelID: interaction.ChannelID,
		GuildID:   interaction.GuildID,
		UserID:    interactionUserID(interaction),
	}
	if err := s.enqueue(ctx, job); err != nil {
		s.logger.Error("Failed to queue /fetch", "error", err, "url", job.URL)
		return ephemeral("❌ Couldn't queue that right now, try again in a moment")
	}

	return ephemeral(fmt.Sprintf("%s Fetching %s", pendingReaction, job.URL))
}

// fetchOptions reads the url and quality options of /fetch
func fetchOptions(options []*discordgo.ApplicationCommandInteractionDataOption) (string, domain.Quality) {
	var rawURL, quality string
	for _, option := range options {
		value, ok := option.Value.(string)
		if !ok {
			continue
		}
		switch option.Name {
		case "url":
			rawURL = strings.TrimSpace(value)
		case "quality":
			quality = value
		}
	}
	return rawURL, domain.ParseQuality(quality)
}

// interactionUserID works for both guild (Member) and DM (User) interactions
func interactionUserID(interaction *discordgo.Interaction) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}
