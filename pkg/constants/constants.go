package constants

import "time"

// Message length limits
const (
	// MaxDiscordMessageLength is Discord's message character limit.
	// Outbound bodies are split into chunks of at most this many characters.
	MaxDiscordMessageLength = 2000
)

// Timeouts and delays
const (
	// DefaultRoomOperationTimeout bounds how long room create/destroy/invite
	// wait for the task loop before the operation is reported as failed
	DefaultRoomOperationTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the time allowed for logout and task cancellation
	DefaultShutdownTimeout = 15 * time.Second
	// StatusHTTPTimeout is the timeout for status server queries from the CLI
	StatusHTTPTimeout = 5 * time.Second
)

// Task loop sizing
const (
	// DefaultTaskQueueSize is the buffer size of the outbound task queue
	DefaultTaskQueueSize = 256
)

// Token masking
const (
	// MinSecretLengthForMasking is the minimum secret length to apply masking
	MinSecretLengthForMasking = 10
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
	// HTTPSuccessStatusCode is the standard HTTP success status code
	HTTPSuccessStatusCode = 200
)

// Status server defaults
const (
	// DefaultStatusPort is the port the status server listens on
	DefaultStatusPort = 8090
)
