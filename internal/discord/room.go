package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/sirupsen/logrus"
)

// RoomOptions identifies a room either by channel id or by name within a guild
type RoomOptions struct {
	ChannelID string
	Name      string
	GuildID   string
}

// roomIdentity is satisfied by Room and Category
type roomIdentity interface {
	roomID() string
}

// Room is a guild text channel. It is identified by exactly one of:
//   - a channel id, when the channel exists
//   - a (name, guild id) pair, when it may not exist yet
//
// Create switches a named room to the id form; Destroy is terminal.
type Room struct {
	client *Client
	kind   Kind

	mu        sync.RWMutex
	channelID string
	name      string
	guildID   string
	parentID  string
	destroyed bool
}

var (
	_ bot.Room = (*Room)(nil)
	_ Sender   = (*Room)(nil)
)

// NewRoom creates a text-channel room
func NewRoom(c *Client, opts RoomOptions) (*Room, error) {
	return newRoom(c, opts, KindRoom)
}

// RoomByID creates a room for a channel known to exist
func RoomByID(c *Client, channelID string) *Room {
	return &Room{client: c, kind: KindRoom, channelID: channelID}
}

func newRoom(c *Client, opts RoomOptions, kind Kind) (*Room, error) {
	if opts.ChannelID != "" && opts.Name != "" {
		return nil, ErrMutuallyExclusive
	}
	if opts.ChannelID == "" && opts.Name == "" {
		return nil, ErrNoIdentifier
	}

	r := &Room{client: c, kind: kind}
	if opts.ChannelID != "" {
		r.channelID = opts.ChannelID
	} else {
		r.name = opts.Name
		r.guildID = opts.GuildID
	}
	return r, nil
}

// Kind implements Sender
func (r *Room) Kind() Kind { return r.kind }

func (r *Room) matches(t discordgo.ChannelType) bool {
	if r.kind == KindCategory {
		return t == discordgo.ChannelTypeGuildCategory
	}
	return t != discordgo.ChannelTypeGuildCategory && t != discordgo.ChannelTypeGuildVoice
}

// byName matches channels of the room's kind and, for a room filed under a
// category, only those in that category
func (r *Room) byName(parentID string) func(*discordgo.Channel) bool {
	return func(ch *discordgo.Channel) bool {
		return r.matches(ch.Type) && (parentID == "" || ch.ParentID == parentID)
	}
}

// resolve re-reads the channel from the connection cache
func (r *Room) resolve() (*discordgo.Channel, bool) {
	r.mu.RLock()
	channelID, name, guildID, parentID, destroyed := r.channelID, r.name, r.guildID, r.parentID, r.destroyed
	r.mu.RUnlock()

	if destroyed {
		return nil, false
	}
	if channelID != "" {
		ch, ok := r.client.channel(channelID)
		if !ok || !r.matches(ch.Type) {
			return nil, false
		}
		return ch, true
	}
	return r.client.findChannel(name, guildID, r.byName(parentID))
}

func (r *Room) roomID() string { return r.ID() }

// ID returns the channel id, or "" when the room does not exist yet
func (r *Room) ID() string {
	r.mu.RLock()
	channelID := r.channelID
	r.mu.RUnlock()

	if channelID != "" {
		return channelID
	}
	if ch, ok := r.resolve(); ok {
		return ch.ID
	}
	return ""
}

// Name returns the live channel name; it is never cached for existing rooms
func (r *Room) Name() string {
	r.mu.RLock()
	channelID, name := r.channelID, r.name
	r.mu.RUnlock()

	if channelID == "" {
		return name
	}
	ch, ok := r.client.channel(channelID)
	if !ok {
		logger.WithField("channel_id", channelID).Error("cannot-find-channel")
		return "<" + channelID + ">"
	}
	return ch.Name
}

// GuildID returns the guild the room belongs to, "" if unknown
func (r *Room) GuildID() string {
	r.mu.RLock()
	channelID, guildID := r.channelID, r.guildID
	r.mu.RUnlock()

	if channelID == "" {
		return guildID
	}
	if ch, ok := r.client.channel(channelID); ok {
		return ch.GuildID
	}
	return ""
}

// Exists reports whether the identifier resolves to a live channel
func (r *Room) Exists() bool {
	_, ok := r.resolve()
	return ok
}

// Joined reports whether the bot can see the channel
func (r *Room) Joined() bool {
	return r.Exists()
}

// Topic returns the channel topic
func (r *Room) Topic() string {
	if ch, ok := r.resolve(); ok {
		return ch.Topic
	}
	return ""
}

// Occupants lists the cached members of the room's guild
func (r *Room) Occupants() ([]bot.RoomOccupant, error) {
	ch, ok := r.resolve()
	if !ok {
		return nil, fmt.Errorf("occupants of %s: %w", r, ErrRoomNotFound)
	}

	var occupants []bot.RoomOccupant
	for _, m := range r.client.cache.Members(ch.GuildID) {
		if m.User == nil {
			continue
		}
		occupants = append(occupants, NewRoomOccupant(r.client, m.User.ID, ch.ID))
	}
	return occupants, nil
}

// Join is a no-op for text channels: a bot sees every channel it has access to
func (r *Room) Join() error {
	if err := requireCapability(r.kind, CapJoin, "join"); err != nil {
		return err
	}
	logger.WithField("room", r.String()).Warn("room-join-not-implemented")
	return nil
}

// Leave is a no-op for text channels
func (r *Room) Leave(reason string) error {
	if err := requireCapability(r.kind, CapLeave, "leave"); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"room":   r.String(),
		"reason": reason,
	}).Warn("room-leave-not-implemented")
	return nil
}

func (r *Room) channelType() discordgo.ChannelType {
	if r.kind == KindCategory {
		return discordgo.ChannelTypeGuildCategory
	}
	return discordgo.ChannelTypeGuildText
}

// Create creates the channel in its guild and waits for the result
func (r *Room) Create() error {
	if err := requireCapability(r.kind, CapCreate, "create"); err != nil {
		return err
	}

	r.mu.RLock()
	destroyed, name, guildID, parentID := r.destroyed, r.name, r.guildID, r.parentID
	r.mu.RUnlock()

	if destroyed {
		return fmt.Errorf("create %s: %w", r, ErrRoomDestroyed)
	}
	if r.Exists() {
		return fmt.Errorf("create %s: %w", r, ErrRoomExists)
	}
	if guildID == "" {
		return fmt.Errorf("create %s: %w", r, ErrNoGuild)
	}

	key := guildID + "/" + parentID + "/" + r.kind.String() + "/" + name
	v, err, _ := r.client.creates.Do(key, func() (interface{}, error) {
		var created *discordgo.Channel
		err := r.client.wait("create-channel", func(context.Context) error {
			// Someone else may have created it since the caller checked
			if ch, ok := r.client.findChannel(name, guildID, r.byName(parentID)); ok {
				return fmt.Errorf("create %s (%s): %w", name, ch.ID, ErrRoomExists)
			}
			ch, err := r.client.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
				Name:     name,
				Type:     r.channelType(),
				ParentID: parentID,
			})
			if err != nil {
				return fmt.Errorf("failed to create channel %s: %w", name, err)
			}
			created = ch
			return nil
		})
		if err != nil {
			return nil, err
		}
		return created, nil
	})
	if err != nil {
		return err
	}

	ch := v.(*discordgo.Channel)
	r.mu.Lock()
	r.channelID = ch.ID
	r.name = ""
	r.guildID = ""
	r.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"kind":       r.kind.String(),
		"name":       name,
		"guild":      guildID,
		"channel_id": ch.ID,
	}).Info("channel-created")
	return nil
}

// Destroy deletes the channel. The room cannot be used afterwards.
func (r *Room) Destroy() error {
	if err := requireCapability(r.kind, CapDestroy, "destroy"); err != nil {
		return err
	}

	r.mu.RLock()
	destroyed := r.destroyed
	r.mu.RUnlock()
	if destroyed {
		return fmt.Errorf("destroy: %w", ErrRoomDestroyed)
	}

	ch, ok := r.resolve()
	if !ok {
		return fmt.Errorf("destroy %s: %w", r, ErrRoomNotFound)
	}

	err := r.client.wait("delete-channel", func(context.Context) error {
		if _, err := r.client.session.ChannelDelete(ch.ID); err != nil {
			return fmt.Errorf("failed to delete channel %s: %w", ch.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.channelID = ch.ID
	r.name = ""
	r.guildID = ""
	r.destroyed = true
	r.mu.Unlock()

	logger.WithField("channel_id", ch.ID).Info("channel-deleted")
	return nil
}

// Invite grants each person permission to view and post in the channel
func (r *Room) Invite(persons ...bot.Person) error {
	if err := requireCapability(r.kind, CapInvite, "invite"); err != nil {
		return err
	}
	ch, ok := r.resolve()
	if !ok {
		return fmt.Errorf("invite to %s: %w", r, ErrRoomNotFound)
	}

	const allow = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	for _, p := range persons {
		userID := p.ID()
		err := r.client.wait("invite-to-channel", func(context.Context) error {
			return r.client.session.ChannelPermissionSet(ch.ID, userID, discordgo.PermissionOverwriteTypeMember, allow, 0)
		})
		if err != nil {
			return fmt.Errorf("failed to invite %s to %s: %w", userID, ch.ID, err)
		}
		logger.WithFields(logrus.Fields{
			"channel_id": ch.ID,
			"user_id":    userID,
		}).Info("user-invited-to-channel")
	}
	return nil
}

func (r *Room) requireLive(c Capability, op string) (*discordgo.Channel, error) {
	if err := requireCapability(r.kind, c, op); err != nil {
		return nil, err
	}
	ch, ok := r.resolve()
	if !ok {
		return nil, fmt.Errorf("%s to %s: %w", op, r, ErrRoomNotFound)
	}
	return ch, nil
}

// Send submits a message to the channel
func (r *Room) Send(content string) error {
	ch, err := r.requireLive(CapSend, "send")
	if err != nil {
		return err
	}
	channelID := ch.ID
	return r.client.submit("send-channel-message", func(context.Context) error {
		_, err := r.client.session.ChannelMessageSend(channelID, content)
		return err
	})
}

// SendEmbed submits an embed to the channel
func (r *Room) SendEmbed(embed *discordgo.MessageEmbed) error {
	ch, err := r.requireLive(CapSend, "send")
	if err != nil {
		return err
	}
	channelID := ch.ID
	return r.client.submit("send-channel-embed", func(context.Context) error {
		_, err := r.client.session.ChannelMessageSendEmbed(channelID, embed)
		return err
	})
}

// TriggerTyping submits a typing indicator to the channel
func (r *Room) TriggerTyping() error {
	ch, err := r.requireLive(CapTyping, "typing")
	if err != nil {
		return err
	}
	channelID := ch.ID
	return r.client.submit("trigger-channel-typing", func(context.Context) error {
		return r.client.session.ChannelTyping(channelID)
	})
}

func (r *Room) String() string {
	if r.kind == KindCategory {
		return "##" + r.Name()
	}
	return "#" + r.Name()
}

// Equal compares channel ids; rooms without an id are never equal
func (r *Room) Equal(other bot.Identifier) bool {
	o, ok := other.(roomIdentity)
	if !ok {
		return false
	}
	id, otherID := r.ID(), o.roomID()
	return id != "" && otherID != "" && id == otherID
}

// Category is a channel category: a container for rooms that cannot itself
// be joined or posted to
type Category struct {
	*Room
}

var _ bot.Room = (*Category)(nil)

// NewCategory creates a category identity
func NewCategory(c *Client, opts RoomOptions) (*Category, error) {
	r, err := newRoom(c, opts, KindCategory)
	if err != nil {
		return nil, err
	}
	return &Category{Room: r}, nil
}

// CreateSubchannel creates a text channel inside the category
func (cat *Category) CreateSubchannel(name string) (*Room, error) {
	if err := requireCapability(cat.kind, CapCreateChild, "create subchannel"); err != nil {
		return nil, err
	}
	parent, ok := cat.resolve()
	if !ok {
		return nil, fmt.Errorf("create subchannel in %s: %w", cat, ErrRoomNotFound)
	}

	room := &Room{
		client:   cat.client,
		kind:     KindRoom,
		name:     name,
		guildID:  parent.GuildID,
		parentID: parent.ID,
	}
	if err := room.Create(); err != nil {
		return nil, err
	}
	return room, nil
}

// Channels lists the rooms currently filed under the category
func (cat *Category) Channels() []*Room {
	parent, ok := cat.resolve()
	if !ok {
		return nil
	}

	var rooms []*Room
	for _, ch := range cat.client.cache.Channels() {
		if ch.ParentID == parent.ID && ch.Type != discordgo.ChannelTypeGuildCategory {
			rooms = append(rooms, RoomByID(cat.client, ch.ID))
		}
	}
	return rooms
}
