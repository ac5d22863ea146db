// Package bot defines the chat-service-neutral messaging model shared by the
// host engine and the backend adapters.
//
// The model mirrors what a chatbot framework expects from any backend:
//
//   - Identifiers: Person, Room, RoomOccupant
//   - Payloads: Message, Card, Presence
//   - Contracts: Backend (implemented by an adapter) and Host (implemented by
//     the framework and invoked by the adapter)
//
// # Usage
//
// A backend adapter is constructed with a Host, then driven by ServeOnce:
//
//	engine := core.NewEngine(cfg)
//	backend := discord.NewBackend(discord.Options{Token: token}, engine)
//	engine.Attach(backend)
//	restart, err := backend.ServeOnce(ctx)
//
// Outbound calls (SendMessage, SendCard, ChangePresence, room operations) may
// be made from any goroutine. Host callbacks are invoked from the adapter's
// event goroutines and must not block for long.
package bot

import "context"

// Backend defines the operations a chat-service adapter offers to the host
type Backend interface {
	// ServeOnce connects, serves events until ctx is done, then shuts down.
	// It returns true when the shutdown was requested (no reconnect wanted).
	ServeOnce(ctx context.Context) (bool, error)

	// SendMessage delivers msg.Body to msg.To.
	// Adapter is responsible for:
	//   - Splitting long messages to platform limits
	//   - Triggering a typing indicator before each chunk
	SendMessage(msg *Message) error

	// SendCard renders a rich card to card.To
	SendCard(card *Card) error

	// BuildReply builds a response addressed back to the sender of msg
	BuildReply(msg *Message, text string, private, threaded bool) *Message

	// ChangePresence changes the bot's own status and activity text
	ChangePresence(status Status, message string) error

	// QueryRoom resolves a room address such as "#general"
	QueryRoom(address string) (Room, error)

	// Rooms lists the rooms visible to the bot
	Rooms() []Room

	// BuildIdentifier parses a textual person address
	BuildIdentifier(text string) (Identifier, error)

	// IsFromSelf reports whether msg was sent by the bot itself
	IsFromSelf(msg *Message) bool

	// PrefixGroupchatReply prefixes a group reply with a mention of identifier
	PrefixGroupchatReply(msg *Message, identifier Person)

	// Identity returns the bot's own identity, nil before the first connect
	Identity() Person

	// Mode names the chat service, e.g. "discord"
	Mode() string

	// Snapshot reports the adapter state for diagnostics
	Snapshot() Snapshot
}

// Host is the set of callbacks a backend invokes on the framework
type Host interface {
	ConnectCallback()
	DisconnectCallback()
	CallbackMessage(msg *Message)
	CallbackMention(msg *Message, mentions []RoomOccupant)
	CallbackPresence(presence Presence)
}

// Snapshot is a point-in-time view of a backend, served by the status server
type Snapshot struct {
	Mode         string   `json:"mode"`
	Connected    bool     `json:"connected"`
	BotID        string   `json:"bot_id,omitempty"`
	BotName      string   `json:"bot_name,omitempty"`
	Guilds       int      `json:"guilds"`
	Rooms        []string `json:"rooms"`
	PendingTasks int      `json:"pending_tasks"`
}
