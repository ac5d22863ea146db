package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/loop"
	"github.com/stretchr/testify/require"
)

const (
	testGuildID = "g1"
	testSelfID  = "1000"
)

// fakeCache is an in-memory Cache
type fakeCache struct {
	mu       sync.RWMutex
	self     *discordgo.User
	users    map[string]*discordgo.User
	guilds   []*discordgo.Guild
	channels []*discordgo.Channel
	members  map[string][]*discordgo.Member
}

func newFakeCache() *fakeCache {
	self := &discordgo.User{ID: testSelfID, Username: "relaybot", Discriminator: "0001", Bot: true}
	return &fakeCache{
		self:    self,
		users:   map[string]*discordgo.User{self.ID: self},
		guilds:  []*discordgo.Guild{{ID: testGuildID, Name: "test"}},
		members: make(map[string][]*discordgo.Member),
	}
}

func (f *fakeCache) addUser(id, username, discriminator string) *discordgo.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &discordgo.User{ID: id, Username: username, Discriminator: discriminator}
	f.users[id] = u
	f.members[testGuildID] = append(f.members[testGuildID], &discordgo.Member{GuildID: testGuildID, User: u})
	return u
}

func (f *fakeCache) addChannel(ch *discordgo.Channel) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, ch)
	return ch
}

func (f *fakeCache) removeChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.channels {
		if ch.ID == id {
			f.channels = append(f.channels[:i], f.channels[i+1:]...)
			return
		}
	}
}

func (f *fakeCache) rename(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Username = name
	}
	for _, ch := range f.channels {
		if ch.ID == id {
			ch.Name = name
		}
	}
}

func (f *fakeCache) Self() *discordgo.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.self
}

func (f *fakeCache) User(id string) (*discordgo.User, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.users[id]
	return u, ok
}

func (f *fakeCache) Channel(id string) (*discordgo.Channel, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return nil, false
}

func (f *fakeCache) Guilds() []*discordgo.Guild {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*discordgo.Guild(nil), f.guilds...)
}

func (f *fakeCache) Channels() []*discordgo.Channel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*discordgo.Channel(nil), f.channels...)
}

func (f *fakeCache) Members(guildID string) []*discordgo.Member {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*discordgo.Member(nil), f.members[guildID]...)
}

// sessionCall is one recorded outbound request
type sessionCall struct {
	Method    string
	ChannelID string
	Content   string
}

// fakeSession records outbound calls and applies channel changes to its cache
type fakeSession struct {
	mu       sync.Mutex
	cache    *fakeCache
	calls    []sessionCall
	embeds   []*discordgo.MessageEmbed
	statuses []discordgo.UpdateStatusData
	handlers []interface{}
	nextID   int
	openErr  error
	opened   bool
	closed   bool
	block    chan struct{}

	// remote holds users only the REST API knows about
	remote map[string]*discordgo.User
	// sendDelay slows every message send down
	sendDelay time.Duration
	// skipReady makes Open return before any Ready handler has run
	skipReady bool
}

func newFakeSession(cache *fakeCache) *fakeSession {
	return &fakeSession{cache: cache, remote: make(map[string]*discordgo.User)}
}

func (s *fakeSession) addRemoteUser(id, username, discriminator string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[id] = &discordgo.User{ID: id, Username: username, Discriminator: discriminator}
}

func (s *fakeSession) record(c sessionCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *fakeSession) Calls() []sessionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sessionCall(nil), s.calls...)
}

func (s *fakeSession) callsTo(method string) []sessionCall {
	var out []sessionCall
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeSession) AddHandler(handler interface{}) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
	return func() {}
}

// Open delivers a Ready event before returning, as the gateway client does
func (s *fakeSession) Open() error {
	s.mu.Lock()
	if s.openErr != nil {
		s.mu.Unlock()
		return s.openErr
	}
	s.opened = true
	handlers := append([]interface{}(nil), s.handlers...)
	skipReady := s.skipReady
	s.mu.Unlock()

	if skipReady {
		return nil
	}

	ready := &discordgo.Ready{User: s.cache.Self()}
	for _, h := range handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.Ready)); ok {
			fn(nil, ready)
		}
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if s.sendDelay > 0 {
		time.Sleep(s.sendDelay)
	}
	s.record(sessionCall{Method: "send", ChannelID: channelID, Content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (s *fakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	s.embeds = append(s.embeds, embed)
	s.mu.Unlock()
	s.record(sessionCall{Method: "embed", ChannelID: channelID, Content: embed.Title})
	return &discordgo.Message{ChannelID: channelID}, nil
}

func (s *fakeSession) ChannelTyping(channelID string, _ ...discordgo.RequestOption) error {
	s.record(sessionCall{Method: "typing", ChannelID: channelID})
	return nil
}

func (s *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (s *fakeSession) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("new-%d", s.nextID)
	s.mu.Unlock()

	ch := s.cache.addChannel(&discordgo.Channel{
		ID:       id,
		GuildID:  guildID,
		Name:     data.Name,
		Type:     data.Type,
		ParentID: data.ParentID,
	})
	s.record(sessionCall{Method: "create", ChannelID: id, Content: data.Name})
	return ch, nil
}

func (s *fakeSession) ChannelDelete(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	ch, ok := s.cache.Channel(channelID)
	if !ok {
		return nil, errors.New("unknown channel")
	}
	s.cache.removeChannel(channelID)
	s.record(sessionCall{Method: "delete", ChannelID: channelID})
	return ch, nil
}

func (s *fakeSession) ChannelPermissionSet(channelID, targetID string, _ discordgo.PermissionOverwriteType, _, _ int64, _ ...discordgo.RequestOption) error {
	s.record(sessionCall{Method: "permission", ChannelID: channelID, Content: targetID})
	return nil
}

func (s *fakeSession) User(userID string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	s.record(sessionCall{Method: "user", Content: userID})
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.remote[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, errors.New("HTTP 404 Not Found, {\"message\": \"Unknown User\", \"code\": 10013}")
}

func (s *fakeSession) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, usd)
	return nil
}

// fakeHost records every callback
type fakeHost struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	messages    []*bot.Message
	mentions    [][]bot.RoomOccupant
	presences   []bot.Presence
	onConnect   func()
}

func (h *fakeHost) ConnectCallback() {
	h.mu.Lock()
	h.connects++
	onConnect := h.onConnect
	h.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
}

func (h *fakeHost) DisconnectCallback() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects++
}

func (h *fakeHost) CallbackMessage(msg *bot.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *fakeHost) CallbackMention(_ *bot.Message, mentions []bot.RoomOccupant) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mentions = append(h.mentions, mentions)
}

func (h *fakeHost) CallbackPresence(p bot.Presence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presences = append(h.presences, p)
}

func (h *fakeHost) counts() (connects, disconnects int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connects, h.disconnects
}

// fixture is a connected backend over fakes
type fixture struct {
	backend *Backend
	client  *Client
	session *fakeSession
	cache   *fakeCache
	host    *fakeHost
	tasks   *loop.Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTimeout(t, time.Second)
}

func newFixtureWithTimeout(t *testing.T, roomTimeout time.Duration) *fixture {
	t.Helper()

	cache := newFakeCache()
	session := newFakeSession(cache)
	host := &fakeHost{}
	tasks := loop.New(64)
	require.NoError(t, tasks.Start())

	client := NewClient(session, cache, tasks, roomTimeout)
	b := NewBackend(Options{Token: "test-token", RoomOperationTimeout: roomTimeout}, host)
	b.client = client
	b.tasks = tasks
	b.self = NewPerson(client, testSelfID)
	b.connected = true
	b.presences = make(map[string]bot.Status)

	t.Cleanup(func() {
		_ = tasks.Shutdown(context.Background())
	})

	return &fixture{
		backend: b,
		client:  client,
		session: session,
		cache:   cache,
		host:    host,
		tasks:   tasks,
	}
}

// flush waits for every submitted task to run
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.tasks.Flush(ctx))
}

func (f *fixture) textChannel(id, name string) *discordgo.Channel {
	return f.cache.addChannel(&discordgo.Channel{
		ID:      id,
		GuildID: testGuildID,
		Name:    name,
		Type:    discordgo.ChannelTypeGuildText,
	})
}

func (f *fixture) categoryChannel(id, name string) *discordgo.Channel {
	return f.cache.addChannel(&discordgo.Channel{
		ID:      id,
		GuildID: testGuildID,
		Name:    name,
		Type:    discordgo.ChannelTypeGuildCategory,
	})
}
