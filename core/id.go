package core

import "github.com/google/uuid"

// NewID returns a new random identifier used for runs, streamed messages,
// tool call correlation and provider tool calls that arrive without an id.
func NewID() string { return uuid.NewString() }
