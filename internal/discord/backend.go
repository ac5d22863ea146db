// Package discord adapts the Discord gateway client to the generic messaging
// model in package bot.
//
// Identity values (Person, RoomOccupant, Room, Category) hold ids plus the
// connection context (*Client) and resolve display attributes on every access.
// Outbound calls are submitted to an ordered task loop rather than issued from
// the caller's goroutine.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/keepmind9/discordbackend/internal/loop"
	"github.com/keepmind9/discordbackend/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Mode is the chat service name reported to the host
const Mode = "discord"

// Options configures a Backend
type Options struct {
	Token                string
	RoomOperationTimeout time.Duration
	ShutdownTimeout      time.Duration
	PrivilegedIntents    bool
	TaskQueueSize        int
}

// DialFunc opens a vendor session (without connecting) and its state cache
type DialFunc func(opts Options) (Session, Cache, error)

// Backend implements bot.Backend for Discord
type Backend struct {
	opts Options
	host bot.Host
	dial DialFunc

	mu        sync.RWMutex
	client    *Client
	tasks     *loop.Loop
	self      *Person
	connected bool
	presences map[string]bot.Status
}

var _ bot.Backend = (*Backend)(nil)

// NewBackend creates a backend reporting to host
func NewBackend(opts Options, host bot.Host) *Backend {
	if opts.RoomOperationTimeout <= 0 {
		opts.RoomOperationTimeout = constants.DefaultRoomOperationTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if opts.TaskQueueSize <= 0 {
		opts.TaskQueueSize = constants.DefaultTaskQueueSize
	}
	return &Backend{
		opts: opts,
		host: host,
		dial: dialDiscord,
	}
}

// SetDialer replaces the session factory, for tests
func (b *Backend) SetDialer(dial DialFunc) {
	b.dial = dial
}

func dialDiscord(opts Options) (Session, Cache, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, nil, err
	}

	session.Identify.Intents = discordgo.IntentsAllWithoutPrivileged
	if opts.PrivilegedIntents {
		session.Identify.Intents |= discordgo.IntentGuildMembers |
			discordgo.IntentGuildPresences |
			discordgo.IntentMessageContent
	}
	return session, newStateCache(session.State), nil
}

// ServeOnce connects to Discord and serves events until ctx is cancelled.
// It then logs out, cancels every outstanding task and reports a requested
// shutdown. Errors during shutdown are logged and swallowed.
func (b *Backend) ServeOnce(ctx context.Context) (bool, error) {
	logger.WithFields(logrus.Fields{
		"token":              maskSecret(b.opts.Token),
		"privileged_intents": b.opts.PrivilegedIntents,
	}).Info("starting-discord-backend")

	session, cache, err := b.dial(b.opts)
	if err != nil {
		return false, fmt.Errorf("failed to create discord session: %w", err)
	}

	tasks := loop.New(b.opts.TaskQueueSize)
	if err := tasks.Start(); err != nil {
		return false, fmt.Errorf("failed to start task loop: %w", err)
	}
	client := NewClient(session, cache, tasks, b.opts.RoomOperationTimeout)

	b.mu.Lock()
	b.client = client
	b.tasks = tasks
	b.self = nil
	b.presences = make(map[string]bot.Status)
	b.mu.Unlock()

	removers := []func(){
		session.AddHandler(b.onReady),
		session.AddHandler(b.onGuildCreate),
		session.AddHandler(b.onMessageCreate),
		session.AddHandler(b.onPresenceUpdate),
	}

	if err := session.Open(); err != nil {
		b.teardown(session, tasks, removers, false)
		return false, fmt.Errorf("failed to open discord connection: %w", err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	// Open applies READY to the state before returning, but handlers run on
	// their own goroutines; take the identity from the state so it is set
	// before the host hears about the connection
	b.ensureSelf(client)

	logger.Info("discord-connected")
	b.host.ConnectCallback()

	<-ctx.Done()

	logger.Info("discord-shutdown-requested")
	b.teardown(session, tasks, removers, true)
	b.host.DisconnectCallback()
	return true, nil
}

// teardown logs out, cancels outstanding tasks and forgets the session
func (b *Backend) teardown(session Session, tasks *loop.Loop, removers []func(), opened bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Warn("discord-shutdown-panic-suppressed")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.ShutdownTimeout)
	defer cancel()

	if opened {
		if err := session.Close(); err != nil {
			logger.WithField("error", err).Debug("discord-logout-error-suppressed")
		}
	}
	for _, remove := range removers {
		remove()
	}
	if err := tasks.Shutdown(ctx); err != nil {
		logger.WithField("error", err).Debug("task-cancellation-error-suppressed")
	}

	b.mu.Lock()
	b.client = nil
	b.connected = false
	b.self = nil
	b.presences = nil
	b.mu.Unlock()

	logger.Info("discord-disconnected")
}

func (b *Backend) currentClient() *Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

func (b *Backend) clientOrErr() (*Client, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil || !b.connected {
		return nil, ErrNotConnected
	}
	return b.client, nil
}

// setSelf memoizes the bot identity; the first id wins
func (b *Backend) setSelf(client *Client, userID string) *Person {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.self == nil && b.client == client {
		b.self = NewPerson(client, userID)
	}
	return b.self
}

// ensureSelf returns the bot identity, taking it from the state cache when no
// Ready handler has run yet
func (b *Backend) ensureSelf(client *Client) *Person {
	if self := b.selfPerson(); self != nil {
		return self
	}
	user := client.cache.Self()
	if user == nil {
		return nil
	}
	return b.setSelf(client, user.ID)
}

func (b *Backend) selfPerson() *Person {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.self
}

// Identity returns the bot's own identity, nil until the first Ready event
func (b *Backend) Identity() bot.Person {
	if self := b.selfPerson(); self != nil {
		return self
	}
	return nil
}

// Mode implements bot.Backend
func (b *Backend) Mode() string { return Mode }

// Snapshot reports connection state for the status server
func (b *Backend) Snapshot() bot.Snapshot {
	b.mu.RLock()
	client, tasks, self, connected := b.client, b.tasks, b.self, b.connected
	b.mu.RUnlock()

	snap := bot.Snapshot{Mode: Mode, Connected: connected, Rooms: []string{}}
	if self != nil {
		snap.BotID = self.ID()
		snap.BotName = self.FullName()
	}
	if tasks != nil {
		snap.PendingTasks = tasks.Pending()
	}
	if client != nil && connected {
		snap.Guilds = len(client.cache.Guilds())
		for _, r := range b.Rooms() {
			snap.Rooms = append(snap.Rooms, r.String())
		}
	}
	return snap
}
