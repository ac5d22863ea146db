package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/sirupsen/logrus"
)

func (b *Backend) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	client := b.currentClient()
	if client == nil || r.User == nil {
		return
	}

	logger.WithFields(logrus.Fields{
		"username": r.User.Username,
		"user_id":  r.User.ID,
	}).Debug("discord-logged-in")

	b.setSelf(client, r.User.ID)

	for _, ch := range client.cache.Channels() {
		logger.WithFields(logrus.Fields{
			"channel_id": ch.ID,
			"name":       ch.Name,
			"guild":      ch.GuildID,
		}).Debug("found-channel")
	}
}

func (b *Backend) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.presences == nil {
		return
	}
	for _, p := range g.Presences {
		if p.User != nil {
			b.presences[p.User.ID] = mapStatus(p.Status)
		}
	}
}

func (b *Backend) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	client := b.currentClient()
	if client == nil || m.Message == nil || m.Author == nil {
		return
	}

	client.observeUser(m.Author)
	for _, u := range m.Mentions {
		client.observeUser(u)
	}

	msg := bot.NewMessage(m.Content)
	msg.Extras["message_id"] = m.ID
	msg.Extras["channel_id"] = m.ChannelID

	if m.GuildID == "" {
		msg.From = NewPerson(client, m.Author.ID)
		if self := b.ensureSelf(client); self != nil {
			msg.To = self
		}
	} else {
		msg.Extras["guild_id"] = m.GuildID
		msg.To = RoomByID(client, m.ChannelID)
		msg.From = NewRoomOccupant(client, m.Author.ID, m.ChannelID)
	}

	logger.WithFields(logrus.Fields{
		"user_id": m.Author.ID,
		"channel": m.ChannelID,
		"private": m.GuildID == "",
		"length":  len(m.Content),
	}).Debug("received-discord-message")

	b.host.CallbackMessage(msg)

	if len(m.Mentions) == 0 {
		return
	}
	mentions := make([]bot.RoomOccupant, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		mentions = append(mentions, NewRoomOccupant(client, u.ID, m.ChannelID))
	}
	b.host.CallbackMention(msg, mentions)
}

func (b *Backend) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	client := b.currentClient()
	if client == nil || p.User == nil {
		return
	}

	client.observeUser(p.User)
	after := mapStatus(p.Status)

	b.mu.Lock()
	if b.presences == nil {
		b.mu.Unlock()
		return
	}
	before, seen := b.presences[p.User.ID]
	b.presences[p.User.ID] = after
	b.mu.Unlock()

	if !seen {
		before = bot.Offline
	}

	fields := logrus.Fields{
		"user_id": p.User.ID,
		"before":  before,
		"after":   after,
	}
	if before == after {
		logger.WithFields(fields).Debug("unrecognised-member-update-ignoring")
		return
	}
	logger.WithFields(fields).Debug("person-changed-status")

	presence := bot.Presence{
		Identifier: NewPerson(client, p.User.ID),
		Status:     after,
	}
	for _, a := range p.Activities {
		if a != nil && a.Name != "" {
			presence.Message = a.Name
			break
		}
	}
	b.host.CallbackPresence(presence)
}

// mapStatus folds the vendor status set onto the four generic states
func mapStatus(s discordgo.Status) bot.Status {
	switch s {
	case discordgo.StatusOnline:
		return bot.Online
	case discordgo.StatusIdle:
		return bot.Away
	case discordgo.StatusDoNotDisturb:
		return bot.DND
	default:
		return bot.Offline
	}
}

// vendorStatus is the inverse of mapStatus; offline maps to invisible since a
// connected bot cannot report itself offline
func vendorStatus(s bot.Status) (discordgo.Status, error) {
	switch s {
	case bot.Online:
		return discordgo.StatusOnline, nil
	case bot.Away:
		return discordgo.StatusIdle, nil
	case bot.DND:
		return discordgo.StatusDoNotDisturb, nil
	case bot.Offline:
		return discordgo.StatusInvisible, nil
	}
	return "", ErrNotSupported
}
