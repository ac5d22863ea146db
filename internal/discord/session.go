package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/internal/loop"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Session defines the interface we need from discordgo.Session.
// This allows us to fake it in tests without a gateway connection.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelPermissionSet(channelID, targetID string, targetType discordgo.PermissionOverwriteType, allow, deny int64, options ...discordgo.RequestOption) error
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

var _ Session = (*discordgo.Session)(nil)

// Cache is a read-only view of the live connection state.
// Returned objects must not be retained past the call site.
type Cache interface {
	Self() *discordgo.User
	User(userID string) (*discordgo.User, bool)
	Channel(channelID string) (*discordgo.Channel, bool)
	Guilds() []*discordgo.Guild
	// Channels returns every guild channel, guild by guild in cache order
	Channels() []*discordgo.Channel
	Members(guildID string) []*discordgo.Member
}

// stateCache implements Cache over the discordgo state tracker
type stateCache struct {
	state *discordgo.State
}

func newStateCache(state *discordgo.State) *stateCache {
	return &stateCache{state: state}
}

func (s *stateCache) Self() *discordgo.User {
	s.state.RLock()
	defer s.state.RUnlock()
	return s.state.User
}

// User finds a user among the bot itself, tracked guild members and DM
// recipients. Message authors are not tracked by the state; see
// Client.observeUser.
func (s *stateCache) User(userID string) (*discordgo.User, bool) {
	if self := s.Self(); self != nil && self.ID == userID {
		return self, true
	}
	for _, g := range s.Guilds() {
		if m, err := s.state.Member(g.ID, userID); err == nil && m.User != nil {
			return m.User, true
		}
	}

	s.state.RLock()
	defer s.state.RUnlock()
	for _, ch := range s.state.PrivateChannels {
		for _, u := range ch.Recipients {
			if u.ID == userID {
				return u, true
			}
		}
	}
	return nil, false
}

// Channel covers guild channels, threads and private channels
func (s *stateCache) Channel(channelID string) (*discordgo.Channel, bool) {
	ch, err := s.state.Channel(channelID)
	if err != nil {
		return nil, false
	}
	return ch, true
}

func (s *stateCache) Guilds() []*discordgo.Guild {
	s.state.RLock()
	defer s.state.RUnlock()
	return append([]*discordgo.Guild(nil), s.state.Guilds...)
}

func (s *stateCache) Channels() []*discordgo.Channel {
	s.state.RLock()
	defer s.state.RUnlock()

	var channels []*discordgo.Channel
	for _, g := range s.state.Guilds {
		channels = append(channels, g.Channels...)
		channels = append(channels, g.Threads...)
	}
	return channels
}

func (s *stateCache) Members(guildID string) []*discordgo.Member {
	g, err := s.state.Guild(guildID)
	if err != nil {
		return nil
	}

	s.state.RLock()
	defer s.state.RUnlock()
	return append([]*discordgo.Member(nil), g.Members...)
}

// Client is the connection context threaded through every identity value.
// It owns nothing the vendor library mutates; lookups always go to the cache.
type Client struct {
	session     Session
	cache       Cache
	tasks       *loop.Loop
	roomTimeout time.Duration
	creates     singleflight.Group

	// seen holds users carried by events (message authors, mentions,
	// presence updates) that the state does not track without the
	// members intent; each event refreshes the entry
	seenMu sync.RWMutex
	seen   map[string]*discordgo.User
}

// NewClient builds a connection context over a session, its cache and the
// task loop outbound operations are submitted to
func NewClient(session Session, cache Cache, tasks *loop.Loop, roomTimeout time.Duration) *Client {
	return &Client{
		session:     session,
		cache:       cache,
		tasks:       tasks,
		roomTimeout: roomTimeout,
		seen:        make(map[string]*discordgo.User),
	}
}

func (c *Client) user(userID string) (*discordgo.User, bool) {
	if userID == "" {
		return nil, false
	}
	if u, ok := c.cache.User(userID); ok {
		return u, true
	}

	c.seenMu.RLock()
	defer c.seenMu.RUnlock()
	u, ok := c.seen[userID]
	return u, ok
}

// observeUser records a user delivered with an event. Partial users
// (presence updates often carry only the id) are ignored.
func (c *Client) observeUser(u *discordgo.User) {
	if u == nil || u.ID == "" || u.Username == "" {
		return
	}
	cp := *u

	c.seenMu.Lock()
	defer c.seenMu.Unlock()
	c.seen[u.ID] = &cp
}

// fetchUser resolves a user from the cache, falling back to the REST API
func (c *Client) fetchUser(userID string) (*discordgo.User, error) {
	if u, ok := c.user(userID); ok {
		return u, nil
	}
	if userID == "" {
		return nil, ErrPersonNotFound
	}

	u, err := c.session.User(userID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Debug("user-lookup-failed")
		return nil, fmt.Errorf("user %s: %w", userID, ErrPersonNotFound)
	}
	c.observeUser(u)
	return u, nil
}

func (c *Client) channel(channelID string) (*discordgo.Channel, bool) {
	if channelID == "" {
		return nil, false
	}
	return c.cache.Channel(channelID)
}

// findChannel looks a channel up by name within one guild. Names are only
// unique per guild, and not even there, so several matches yield the first
// one in cache order plus a warning.
func (c *Client) findChannel(name, guildID string, match func(*discordgo.Channel) bool) (*discordgo.Channel, bool) {
	var found []*discordgo.Channel
	for _, ch := range c.cache.Channels() {
		if ch.Name == name && ch.GuildID == guildID && match(ch) {
			found = append(found, ch)
		}
	}

	switch len(found) {
	case 0:
		return nil, false
	case 1:
		return found[0], true
	}

	ids := make([]string, len(found))
	for i, ch := range found {
		ids[i] = ch.ID
	}
	logger.WithFields(logrus.Fields{
		"name":     name,
		"guild":    guildID,
		"matches":  ids,
		"selected": found[0].ID,
	}).Warn("ambiguous-channel-name")
	return found[0], true
}

func (c *Client) findUser(username, discriminator string) (*discordgo.User, bool) {
	if self := c.cache.Self(); self != nil && self.Username == username && self.Discriminator == discriminator {
		return self, true
	}
	for _, g := range c.cache.Guilds() {
		for _, m := range c.cache.Members(g.ID) {
			if m.User != nil && m.User.Username == username && m.User.Discriminator == discriminator {
				return m.User, true
			}
		}
	}

	c.seenMu.RLock()
	defer c.seenMu.RUnlock()
	for _, u := range c.seen {
		if u.Username == username && u.Discriminator == discriminator {
			return u, true
		}
	}
	return nil, false
}

// submit hands fn to the task loop without waiting for it
func (c *Client) submit(name string, fn loop.Task) error {
	_, err := c.tasks.Submit(name, fn)
	return err
}

// wait hands fn to the task loop and blocks until it finishes or the room
// operation timeout expires
func (c *Client) wait(name string, fn loop.Task) error {
	return c.tasks.SubmitWait(context.Background(), name, c.roomTimeout, fn)
}
