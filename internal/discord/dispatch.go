package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/pkg/constants"
	"github.com/sirupsen/logrus"
)

func asSender(id bot.Identifier) (Sender, error) {
	if id == nil {
		return nil, fmt.Errorf("no recipient: %w", ErrNotSupported)
	}
	s, ok := id.(Sender)
	if !ok {
		return nil, fmt.Errorf("send to %T: %w", id, ErrNotSupported)
	}
	if !s.Kind().Can(CapSend) {
		return nil, fmt.Errorf("send to %s: %w", s.Kind(), ErrNotSupported)
	}
	return s, nil
}

// SendMessage splits msg.Body into chunks and submits a typing indicator and
// a send for each chunk, in order. Chunks are delivered independently.
func (b *Backend) SendMessage(msg *bot.Message) error {
	if _, err := b.clientOrErr(); err != nil {
		return err
	}
	target, err := asSender(msg.To)
	if err != nil {
		return err
	}

	chunks := splitMessage(msg.Body, constants.MaxDiscordMessageLength)
	for _, chunk := range chunks {
		if err := target.TriggerTyping(); err != nil {
			return err
		}
		if err := target.Send(chunk); err != nil {
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"to":     target.ID(),
		"kind":   target.Kind().String(),
		"length": len(msg.Body),
		"chunks": len(chunks),
	}).Info("message-sent-to-discord")
	return nil
}

// SendCard renders card as an embed. Cards addressed to an occupant go to
// the occupant's room.
func (b *Backend) SendCard(card *bot.Card) error {
	if _, err := b.clientOrErr(); err != nil {
		return err
	}

	to := card.To
	if occupant, ok := to.(*RoomOccupant); ok {
		to = occupant.Channel()
	}
	target, err := asSender(to)
	if err != nil {
		return err
	}

	color, err := parseColor(card.Color)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{
		Title:       card.Title,
		Description: card.Body,
		URL:         card.Link,
		Color:       color,
	}
	if card.Image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: card.Image}
	}
	if card.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: card.Thumbnail}
	}
	for _, f := range card.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Key,
			Value:  f.Value,
			Inline: true,
		})
	}

	if err := target.TriggerTyping(); err != nil {
		return err
	}
	if err := target.SendEmbed(embed); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"to":     target.ID(),
		"title":  card.Title,
		"fields": len(card.Fields),
	}).Info("card-sent-to-discord")
	return nil
}

// BuildReply addresses text back to where msg came from. Group replies come
// from the bot as an occupant of the room; private forces a direct reply.
func (b *Backend) BuildReply(msg *bot.Message, text string, private, threaded bool) *bot.Message {
	reply := bot.NewMessage(text)
	self := b.selfPerson()

	if msg.IsDirect() || !msg.IsGroup() {
		if self != nil {
			reply.From = self
		}
		reply.To = msg.From
	} else {
		if room, ok := msg.To.(*Room); ok && self != nil {
			reply.From = &RoomOccupant{person: self, room: room}
		} else if self != nil {
			reply.From = self
		}
		if private {
			reply.To = directPerson(msg.From)
		} else {
			reply.To = msg.To
		}
	}

	if threaded {
		reply.Parent = msg
	}
	return reply
}

func directPerson(id bot.Identifier) bot.Identifier {
	if occupant, ok := id.(*RoomOccupant); ok {
		return occupant.AsPerson()
	}
	return id
}

// ChangePresence sets the bot status and activity text
func (b *Backend) ChangePresence(status bot.Status, message string) error {
	client, err := b.clientOrErr()
	if err != nil {
		return err
	}
	vs, err := vendorStatus(status)
	if err != nil {
		return fmt.Errorf("presence %q: %w", status, err)
	}

	data := discordgo.UpdateStatusData{Status: string(vs)}
	if message != "" {
		data.Activities = []*discordgo.Activity{{
			Name: message,
			Type: discordgo.ActivityTypeGame,
		}}
	}

	logger.WithFields(logrus.Fields{
		"status":   status,
		"activity": message,
	}).Debug("presence-changed")

	return client.submit("change-presence", func(context.Context) error {
		return client.session.UpdateStatusComplex(data)
	})
}

// QueryRoom resolves "##name" to a Category and "#name" to a Room in the
// connected guild. The returned identity may not exist yet.
func (b *Backend) QueryRoom(address string) (bot.Room, error) {
	client, err := b.clientOrErr()
	if err != nil {
		return nil, err
	}

	var name string
	category := false
	switch {
	case strings.HasPrefix(address, "##"):
		name, category = address[2:], true
	case strings.HasPrefix(address, "#"):
		name = address[1:]
	default:
		return nil, fmt.Errorf("%q: %w", address, ErrMalformedAddress)
	}
	if name == "" {
		return nil, fmt.Errorf("%q: %w", address, ErrMalformedAddress)
	}

	guildID, err := primaryGuild(client)
	if err != nil {
		return nil, err
	}

	opts := RoomOptions{Name: name, GuildID: guildID}
	if category {
		cat, err := NewCategory(client, opts)
		if err != nil {
			return nil, err
		}
		return cat, nil
	}
	room, err := NewRoom(client, opts)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// primaryGuild returns the guild room addresses are resolved against
func primaryGuild(c *Client) (string, error) {
	guilds := c.cache.Guilds()
	if len(guilds) == 0 {
		return "", ErrNoGuild
	}
	if len(guilds) > 1 {
		logger.WithFields(logrus.Fields{
			"guilds":   len(guilds),
			"selected": guilds[0].ID,
		}).Warn("multiple-guilds-using-first")
	}
	return guilds[0].ID, nil
}

// Rooms lists every text channel visible to the bot
func (b *Backend) Rooms() []bot.Room {
	client, err := b.clientOrErr()
	if err != nil {
		return nil
	}

	var rooms []bot.Room
	for _, ch := range client.cache.Channels() {
		if ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews {
			rooms = append(rooms, RoomByID(client, ch.ID))
		}
	}
	return rooms
}

// BuildIdentifier parses "username#discriminator" into a Person
func (b *Backend) BuildIdentifier(text string) (bot.Identifier, error) {
	client, err := b.clientOrErr()
	if err != nil {
		return nil, err
	}

	i := strings.LastIndex(text, "#")
	if i <= 0 || i == len(text)-1 {
		return nil, fmt.Errorf("%q: %w", text, ErrMalformedAddress)
	}
	user, ok := client.findUser(text[:i], text[i+1:])
	if !ok {
		return nil, fmt.Errorf("%q: %w", text, ErrPersonNotFound)
	}
	return NewPerson(client, user.ID), nil
}

// IsFromSelf reports whether msg was sent by the bot account
func (b *Backend) IsFromSelf(msg *bot.Message) bool {
	self := b.selfPerson()
	if self == nil || msg.From == nil {
		return false
	}
	return self.Equal(msg.From)
}

// PrefixGroupchatReply mentions identifier at the start of msg
func (b *Backend) PrefixGroupchatReply(msg *bot.Message, identifier bot.Person) {
	msg.Body = "@" + identifier.Nick() + " " + msg.Body
}
