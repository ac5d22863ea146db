package bot

// Identifier is anything a message can be sent from or to
type Identifier interface {
	// ID returns the stable identifier, empty when the entity has none yet
	ID() string
	// Equal compares identity, never display attributes
	Equal(other Identifier) bool
	String() string
}

// Person is a user of the chat service
type Person interface {
	Identifier
	Person() string
	Nick() string
	FullName() string
	ACLAttr() string
	Client() string
}

// Room is a shared conversation space
type Room interface {
	Identifier
	Name() string
	Exists() bool
	Joined() bool
	Topic() string
	Occupants() ([]RoomOccupant, error)
	Join() error
	Leave(reason string) error
	Create() error
	Destroy() error
	Invite(persons ...Person) error
}

// RoomOccupant is a person as seen inside a specific room
type RoomOccupant interface {
	Person
	Room() Room
}
