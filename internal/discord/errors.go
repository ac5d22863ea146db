package discord

import "errors"

var (
	// ErrMutuallyExclusive is returned when a room is given both a channel id and a name
	ErrMutuallyExclusive = errors.New("channel id and channel name are mutually exclusive")
	// ErrNoIdentifier is returned when a room is given neither a channel id nor a name
	ErrNoIdentifier = errors.New("either a channel id or a channel name is required")
	// ErrRoomExists is returned when creating a room that already exists
	ErrRoomExists = errors.New("room exists")
	// ErrRoomNotFound is returned when operating on a room that does not exist
	ErrRoomNotFound = errors.New("room doesn't exist")
	// ErrRoomDestroyed is returned when operating on a room after Destroy
	ErrRoomDestroyed = errors.New("room has been destroyed")
	// ErrPersonNotFound is returned when a send targets an unknown user
	ErrPersonNotFound = errors.New("person does not exist")
	// ErrNoGuild is returned when no guild is available for a room operation
	ErrNoGuild = errors.New("no guild available")
	// ErrMalformedAddress is returned when a textual address cannot be parsed
	ErrMalformedAddress = errors.New("malformed address")
	// ErrNotSupported is returned when an entity kind lacks the requested capability
	ErrNotSupported = errors.New("operation not supported")
	// ErrInvalidColor is returned for colour strings that are neither known names nor hex
	ErrInvalidColor = errors.New("invalid color")
	// ErrNotConnected is returned when the backend has no live session
	ErrNotConnected = errors.New("discord session not initialized")
)
