package bot

import "fmt"

// Status is a generic presence state
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
	Away    Status = "away"
	DND     Status = "dnd"
)

// ParseStatus parses a presence name, accepting "idle" as Away
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Online, Offline, Away, DND:
		return Status(s), nil
	}
	if s == "idle" {
		return Away, nil
	}
	return "", fmt.Errorf("unknown presence status %q", s)
}

// Message is a chat message travelling in either direction
type Message struct {
	Body   string
	From   Identifier
	To     Identifier
	Parent *Message // set on threaded replies
	Extras map[string]string
}

// NewMessage builds an outbound message with the given body
func NewMessage(body string) *Message {
	return &Message{Body: body, Extras: make(map[string]string)}
}

// IsDirect reports whether the message is a one-to-one conversation
func (m *Message) IsDirect() bool {
	if m.To == nil {
		return false
	}
	if _, isRoom := m.To.(Room); isRoom {
		return false
	}
	_, isPerson := m.To.(Person)
	return isPerson
}

// IsGroup reports whether the message was addressed to a room
func (m *Message) IsGroup() bool {
	_, isRoom := m.To.(Room)
	return isRoom
}

// Presence is a status change notification for a person
type Presence struct {
	Identifier Person
	Status     Status
	Message    string
}

// CardField is a key/value pair rendered inside a card
type CardField struct {
	Key   string
	Value string
}

// Card is a rich message with optional title, colour, images and fields
type Card struct {
	To        Identifier
	From      Identifier
	Title     string
	Body      string
	Link      string
	Color     string // colour name or hex literal
	Image     string
	Thumbnail string
	Fields    []CardField
}
