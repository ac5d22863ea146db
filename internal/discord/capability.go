package discord

import "fmt"

// Kind tags the identity variants the adapter hands out
type Kind int

const (
	KindPerson Kind = iota
	KindOccupant
	KindRoom
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindPerson:
		return "person"
	case KindOccupant:
		return "occupant"
	case KindRoom:
		return "room"
	case KindCategory:
		return "category"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Capability is a bit set of operations an identity kind supports
type Capability uint16

const (
	CapSend Capability = 1 << iota
	CapTyping
	CapJoin
	CapLeave
	CapCreate
	CapDestroy
	CapInvite
	CapCreateChild
)

var capabilities = map[Kind]Capability{
	KindPerson:   CapSend | CapTyping,
	KindOccupant: CapSend | CapTyping,
	KindRoom:     CapSend | CapTyping | CapJoin | CapLeave | CapCreate | CapDestroy | CapInvite,
	KindCategory: CapCreate | CapDestroy | CapCreateChild,
}

// Can reports whether kind k declares capability c
func (k Kind) Can(c Capability) bool {
	return capabilities[k]&c == c
}

func requireCapability(k Kind, c Capability, op string) error {
	if !k.Can(c) {
		return fmt.Errorf("%s on %s: %w", op, k, ErrNotSupported)
	}
	return nil
}
