package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/discordbackend/internal/bot"
	"github.com/keepmind9/discordbackend/internal/logger"
	"github.com/sirupsen/logrus"
)

// maxCommandInputLength is the maximum accepted length of a command line
const maxCommandInputLength = 10000

// specialCommands lists the built-in commands; the value marks admin-only ones
var specialCommands = map[string]bool{
	"help":     false,
	"whoami":   false,
	"rooms":    false,
	"status":   false,
	"echo":     false,
	"card":     false,
	"presence": true,
	"mkroom":   true,
	"rmroom":   true,
}

// parseCommand splits "<prefix>name args" into the command name and its
// argument text. Anything else is not a command.
func parseCommand(prefix, input string) (string, string, bool) {
	if len(input) > maxCommandInputLength || !strings.HasPrefix(input, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(input[len(prefix):])
	if rest == "" {
		return "", "", false
	}

	name, args, _ := strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// Engine is the host side of the backend contract: it receives callbacks from
// the backend and answers built-in commands through it
type Engine struct {
	config    *Config
	startedAt time.Time

	mu      sync.RWMutex
	backend bot.Backend
}

var _ bot.Host = (*Engine)(nil)

// NewEngine creates a new Engine instance
func NewEngine(config *Config) *Engine {
	return &Engine{
		config:    config,
		startedAt: time.Now(),
	}
}

// Attach sets the backend the engine replies through
func (e *Engine) Attach(backend bot.Backend) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backend = backend
}

func (e *Engine) getBackend() bot.Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend
}

// ConnectCallback joins the configured rooms
func (e *Engine) ConnectCallback() {
	backend := e.getBackend()
	if backend == nil {
		return
	}
	logger.WithField("mode", backend.Mode()).Info("backend-connected")

	for _, address := range e.config.ChatroomPresence {
		room, err := backend.QueryRoom(address)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"room":  address,
				"error": err,
			}).Warn("failed-to-resolve-chatroom")
			continue
		}
		if err := room.Join(); err != nil {
			logger.WithFields(logrus.Fields{
				"room":  address,
				"error": err,
			}).Warn("failed-to-join-chatroom")
			continue
		}
		logger.WithField("room", address).Info("joined-chatroom")
	}
}

// DisconnectCallback implements bot.Host
func (e *Engine) DisconnectCallback() {
	logger.Info("backend-disconnected")
}

// CallbackMessage answers built-in commands from authorized users
func (e *Engine) CallbackMessage(msg *bot.Message) {
	backend := e.getBackend()
	if backend == nil || msg.From == nil {
		return
	}
	if backend.IsFromSelf(msg) {
		return
	}

	userID := msg.From.ID()
	logger.WithFields(logrus.Fields{
		"user":  userID,
		"group": msg.IsGroup(),
	}).Debug("processing-user-message")

	// Security check - verify user is in whitelist
	if !e.config.IsUserAuthorized(Platform, userID) {
		logger.WithField("user", userID).Warn("unauthorized-access-attempt")
		return
	}

	name, args, ok := parseCommand(e.config.BotPrefix, strings.TrimSpace(msg.Body))
	if !ok {
		return
	}

	logger.WithFields(logrus.Fields{
		"command": name,
		"user":    userID,
	}).Info("special-command-received")
	e.HandleCommand(name, args, msg)
}

// HandleCommand runs one built-in command and replies to msg
func (e *Engine) HandleCommand(name, args string, msg *bot.Message) {
	adminOnly, known := specialCommands[name]
	if !known {
		e.reply(msg, fmt.Sprintf("❌ Unknown command: %s\nUse '%shelp' to see available commands", name, e.config.BotPrefix))
		return
	}
	if adminOnly && !e.config.IsAdmin(Platform, msg.From.ID()) {
		e.reply(msg, "❌ Permission denied: admin only")
		return
	}

	switch name {
	case "help":
		e.showHelp(msg)
	case "whoami":
		e.showWhoami(msg)
	case "rooms":
		e.listRooms(msg)
	case "status":
		e.showStatus(msg)
	case "echo":
		e.reply(msg, args)
	case "card":
		e.handleCard(args, msg)
	case "presence":
		e.handlePresence(args, msg)
	case "mkroom":
		e.handleCreateRoom(args, msg)
	case "rmroom":
		e.handleDestroyRoom(args, msg)
	}
}

// reply sends text back to where msg came from, mentioning the sender in rooms
func (e *Engine) reply(msg *bot.Message, text string) {
	backend := e.getBackend()
	if backend == nil {
		return
	}

	response := backend.BuildReply(msg, text, false, false)
	if msg.IsGroup() {
		if sender, ok := msg.From.(bot.Person); ok {
			backend.PrefixGroupchatReply(response, sender)
		}
	}

	if err := backend.SendMessage(response); err != nil {
		logger.WithFields(logrus.Fields{
			"to":    msg.From.ID(),
			"error": err,
		}).Error("failed-to-send-reply")
	}
}

func (e *Engine) showHelp(msg *bot.Message) {
	p := e.config.BotPrefix
	help := fmt.Sprintf(`📖 **Help**

**Commands**:
  %[1]shelp                         - Show this help message
  %[1]swhoami                       - Show your identity
  %[1]srooms                        - List visible rooms
  %[1]sstatus                       - Show backend status
  %[1]secho <text>                  - Repeat text
  %[1]scard <title>|<body>|<color>  - Send a card
  %[1]spresence <status> [text]     - Change bot presence (admin only)
  %[1]smkroom <#name|##name>        - Create a room or category (admin only)
  %[1]srmroom <#name|##name>        - Delete a room or category (admin only)`, p)

	e.reply(msg, help)
}

func (e *Engine) showWhoami(msg *bot.Message) {
	name := msg.From.String()
	if person, ok := msg.From.(bot.Person); ok {
		name = person.FullName()
	}

	where := "direct message"
	if msg.IsGroup() {
		where = msg.To.String()
	}

	e.reply(msg, fmt.Sprintf("🔍 **Your Information**\n\n"+
		"**Name:** %s\n"+
		"**User ID:** `%s` (Use this for whitelist)\n"+
		"**Where:** %s\n"+
		"**Admin:** %t",
		name, msg.From.ID(), where, e.config.IsAdmin(Platform, msg.From.ID())))
}

func (e *Engine) listRooms(msg *bot.Message) {
	var names []string
	for _, room := range e.getBackend().Rooms() {
		names = append(names, room.String())
	}
	sort.Strings(names)

	if len(names) == 0 {
		e.reply(msg, "📋 No rooms visible")
		return
	}
	e.reply(msg, "📋 Rooms:\n  • "+strings.Join(names, "\n  • "))
}

func (e *Engine) showStatus(msg *bot.Message) {
	snap := e.getBackend().Snapshot()

	status := "❌ disconnected"
	if snap.Connected {
		status = "✅ connected"
	}

	e.reply(msg, fmt.Sprintf("📊 **Status**\n\n"+
		"**Backend:** %s (%s)\n"+
		"**Bot:** %s\n"+
		"**Guilds:** %d\n"+
		"**Rooms:** %d\n"+
		"**Pending tasks:** %d\n"+
		"**Uptime:** %s",
		snap.Mode, status, snap.BotName, snap.Guilds, len(snap.Rooms), snap.PendingTasks,
		time.Since(e.startedAt).Truncate(time.Second)))
}

// handleCard sends "title|body|color" as a card to where msg came from
func (e *Engine) handleCard(args string, msg *bot.Message) {
	parts := strings.SplitN(args, "|", 3)
	if args == "" {
		e.reply(msg, fmt.Sprintf("❌ Invalid arguments\nUsage: %scard <title>|<body>|<color>", e.config.BotPrefix))
		return
	}

	card := &bot.Card{Title: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		card.Body = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		card.Color = strings.TrimSpace(parts[2])
	}

	if msg.IsGroup() {
		card.To = msg.To
	} else {
		card.To = msg.From
	}

	if err := e.getBackend().SendCard(card); err != nil {
		logger.WithFields(logrus.Fields{
			"title": card.Title,
			"error": err,
		}).Warn("failed-to-send-card")
		e.reply(msg, fmt.Sprintf("❌ Failed to send card: %v", err))
	}
}

func (e *Engine) handlePresence(args string, msg *bot.Message) {
	name, text, _ := strings.Cut(args, " ")
	status, err := bot.ParseStatus(strings.ToLower(name))
	if err != nil {
		e.reply(msg, "❌ Invalid status\nUse one of: online, away, dnd, offline")
		return
	}

	if err := e.getBackend().ChangePresence(status, strings.TrimSpace(text)); err != nil {
		e.reply(msg, fmt.Sprintf("❌ Failed to change presence: %v", err))
		return
	}
	e.reply(msg, fmt.Sprintf("✅ Presence set to %s", status))
}

func roomAddress(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" || strings.HasPrefix(arg, "#") {
		return arg
	}
	return "#" + arg
}

func (e *Engine) handleCreateRoom(args string, msg *bot.Message) {
	address := roomAddress(args)
	if address == "" {
		e.reply(msg, fmt.Sprintf("❌ Invalid arguments\nUsage: %smkroom <#name|##name>", e.config.BotPrefix))
		return
	}

	room, err := e.getBackend().QueryRoom(address)
	if err == nil {
		err = room.Create()
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"room":  address,
			"user":  msg.From.ID(),
			"error": err,
		}).Warn("failed-to-create-room")
		e.reply(msg, fmt.Sprintf("❌ Failed to create %s: %v", address, err))
		return
	}

	logger.WithFields(logrus.Fields{
		"action": "create_room",
		"room":   address,
		"id":     room.ID(),
		"user":   msg.From.ID(),
	}).Info("admin-created-room")
	e.reply(msg, fmt.Sprintf("✅ Created %s", room))
}

func (e *Engine) handleDestroyRoom(args string, msg *bot.Message) {
	address := roomAddress(args)
	if address == "" {
		e.reply(msg, fmt.Sprintf("❌ Invalid arguments\nUsage: %srmroom <#name|##name>", e.config.BotPrefix))
		return
	}

	room, err := e.getBackend().QueryRoom(address)
	if err == nil {
		err = room.Destroy()
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"room":  address,
			"user":  msg.From.ID(),
			"error": err,
		}).Warn("failed-to-destroy-room")
		e.reply(msg, fmt.Sprintf("❌ Failed to delete %s: %v", address, err))
		return
	}

	logger.WithFields(logrus.Fields{
		"action": "destroy_room",
		"room":   address,
		"user":   msg.From.ID(),
	}).Info("admin-destroyed-room")
	e.reply(msg, fmt.Sprintf("✅ Deleted %s", address))
}

// CallbackMention logs who was mentioned
func (e *Engine) CallbackMention(msg *bot.Message, mentions []bot.RoomOccupant) {
	ids := make([]string, len(mentions))
	for i, m := range mentions {
		ids[i] = m.ID()
	}
	fields := logrus.Fields{"mentions": ids}
	if msg.From != nil {
		fields["from"] = msg.From.ID()
	}
	logger.WithFields(fields).Info("mention-received")
}

// CallbackPresence logs presence changes
func (e *Engine) CallbackPresence(presence bot.Presence) {
	fields := logrus.Fields{"status": presence.Status}
	if presence.Identifier != nil {
		fields["user"] = presence.Identifier.ID()
	}
	if presence.Message != "" {
		fields["activity"] = presence.Message
	}
	logger.WithFields(fields).Info("presence-changed")
}
