package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
)

// Sender is implemented by every identity that can receive a message
type Sender interface {
	bot.Identifier
	Kind() Kind
	Send(content string) error
	SendEmbed(embed *discordgo.MessageEmbed) error
	TriggerTyping() error
}

// personIdentity is satisfied by Person and anything embedding it
type personIdentity interface {
	personID() string
}

// Person is a Discord user, identified only by its user id.
// Display attributes are looked up on every access.
type Person struct {
	client *Client
	userID string
}

var (
	_ bot.Person = (*Person)(nil)
	_ Sender     = (*Person)(nil)
)

// NewPerson creates a person for the given user id
func NewPerson(c *Client, userID string) *Person {
	return &Person{client: c, userID: userID}
}

func (p *Person) personID() string { return p.userID }

// Kind implements Sender
func (p *Person) Kind() Kind { return KindPerson }

// ID returns the user id
func (p *Person) ID() string { return p.userID }

// Person returns the user id
func (p *Person) Person() string { return p.userID }

// ACLAttr returns the user id, which is what access lists match against
func (p *Person) ACLAttr() string { return p.userID }

// Client returns the client the person connects from; Discord does not expose one
func (p *Person) Client() string { return "" }

func (p *Person) placeholder() string {
	return "<" + p.userID + ">"
}

// Username returns the current user name, or a placeholder when the user is
// not in the connection cache
func (p *Person) Username() string {
	user, ok := p.client.user(p.userID)
	if !ok {
		logger.WithField("user_id", p.userID).Error("cannot-find-user")
		return p.placeholder()
	}
	return user.Username
}

// Nick is an alias of Username
func (p *Person) Nick() string { return p.Username() }

// FullName returns "username#discriminator"
func (p *Person) FullName() string {
	user, ok := p.client.user(p.userID)
	if !ok {
		logger.WithField("user_id", p.userID).Error("cannot-find-user")
		return p.placeholder()
	}
	return user.Username + "#" + user.Discriminator
}

func (p *Person) String() string { return p.FullName() }

// Equal compares user ids only
func (p *Person) Equal(other bot.Identifier) bool {
	o, ok := other.(personIdentity)
	return ok && o.personID() == p.userID
}

func (p *Person) requireKnown(kind Kind, c Capability, op string) error {
	if err := requireCapability(kind, c, op); err != nil {
		return err
	}
	if _, err := p.client.fetchUser(p.userID); err != nil {
		return fmt.Errorf("%s to user %s: %w", op, p.userID, ErrPersonNotFound)
	}
	return nil
}

// directChannel opens (or reuses) the DM channel; runs on the task loop
func (p *Person) directChannel() (string, error) {
	ch, err := p.client.session.UserChannelCreate(p.userID)
	if err != nil {
		return "", fmt.Errorf("failed to open direct channel with %s: %w", p.userID, err)
	}
	return ch.ID, nil
}

// Send submits a direct message
func (p *Person) Send(content string) error {
	if err := p.requireKnown(KindPerson, CapSend, "send"); err != nil {
		return err
	}
	return p.client.submit("send-direct-message", func(context.Context) error {
		channelID, err := p.directChannel()
		if err != nil {
			return err
		}
		_, err = p.client.session.ChannelMessageSend(channelID, content)
		return err
	})
}

// SendEmbed submits a direct embed
func (p *Person) SendEmbed(embed *discordgo.MessageEmbed) error {
	if err := p.requireKnown(KindPerson, CapSend, "send"); err != nil {
		return err
	}
	return p.client.submit("send-direct-embed", func(context.Context) error {
		channelID, err := p.directChannel()
		if err != nil {
			return err
		}
		_, err = p.client.session.ChannelMessageSendEmbed(channelID, embed)
		return err
	})
}

// TriggerTyping submits a typing indicator in the DM channel
func (p *Person) TriggerTyping() error {
	if err := p.requireKnown(KindPerson, CapTyping, "typing"); err != nil {
		return err
	}
	return p.client.submit("trigger-direct-typing", func(context.Context) error {
		channelID, err := p.directChannel()
		if err != nil {
			return err
		}
		return p.client.session.ChannelTyping(channelID)
	})
}

// RoomOccupant is a person as seen inside one channel. Sending to an
// occupant sends a direct message to the person.
type RoomOccupant struct {
	person *Person
	room   *Room
}

var (
	_ bot.RoomOccupant = (*RoomOccupant)(nil)
	_ Sender           = (*RoomOccupant)(nil)
)

// NewRoomOccupant creates an occupant for a user inside an existing channel
func NewRoomOccupant(c *Client, userID, channelID string) *RoomOccupant {
	return &RoomOccupant{
		person: NewPerson(c, userID),
		room:   RoomByID(c, channelID),
	}
}

func (o *RoomOccupant) personID() string { return o.person.userID }

// Kind implements Sender
func (o *RoomOccupant) Kind() Kind { return KindOccupant }

// Room returns the channel the person was seen in
func (o *RoomOccupant) Room() bot.Room { return o.room }

// Channel returns the concrete room
func (o *RoomOccupant) Channel() *Room { return o.room }

// AsPerson returns the occupant without its room
func (o *RoomOccupant) AsPerson() *Person { return o.person }

func (o *RoomOccupant) ID() string       { return o.person.ID() }
func (o *RoomOccupant) Person() string   { return o.person.Person() }
func (o *RoomOccupant) Nick() string     { return o.person.Nick() }
func (o *RoomOccupant) Username() string { return o.person.Username() }
func (o *RoomOccupant) FullName() string { return o.person.FullName() }
func (o *RoomOccupant) ACLAttr() string  { return o.person.ACLAttr() }
func (o *RoomOccupant) Client() string   { return o.person.Client() }

func (o *RoomOccupant) Send(content string) error { return o.person.Send(content) }

func (o *RoomOccupant) SendEmbed(embed *discordgo.MessageEmbed) error {
	return o.person.SendEmbed(embed)
}

func (o *RoomOccupant) TriggerTyping() error { return o.person.TriggerTyping() }

// Equal requires both the user and the channel to match
func (o *RoomOccupant) Equal(other bot.Identifier) bool {
	oo, ok := other.(*RoomOccupant)
	return ok && oo.person.userID == o.person.userID && oo.room.ID() == o.room.ID()
}

func (o *RoomOccupant) String() string {
	return o.person.String() + "@" + o.room.Name()
}
