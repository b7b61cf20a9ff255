package service

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

// DiscordAlerter mirrors escalation events into a staff Discord
// channel so on-call admins see paid-but-unprovisioned orders even
// when away from the dashboard. Entirely optional; a nil *DiscordAlerter
// is safe to call.
type DiscordAlerter struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordAlerter(botToken, channelID string) (*DiscordAlerter, error) {
	if botToken == "" || channelID == "" {
		return nil, nil
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord open: %w", err)
	}
	return &DiscordAlerter{session: session, channelID: channelID}, nil
}

// Alert posts an embed to the staff channel. Failures are logged only;
// alerting must never break the caller.
func (a *DiscordAlerter) Alert(title, description string) {
	if a == nil {
		return
	}
	_, err := a.session.ChannelMessageSendEmbed(a.channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       0xE74C3C,
	})
	if err != nil {
		log.Printf("[Discord] alert failed: %v", err)
	}
}

func (a *DiscordAlerter) Close() {
	if a == nil {
		return
	}
	_ = a.session.Close()
}
