// Package model defines the provider-neutral generation contract used by the
// reasoning loop.
//
// A Model turns a Request (conversation messages plus bound tool definitions)
// into a single assistant Response carrying text, tool call requests, token
// usage and a finish reason. Streaming backends additionally report text and
// thinking deltas through Request.OnChunk while the call is in flight.
//
// Concrete backends live in sub-packages (model/openai, model/anthropic) and
// are selected by the provider prefix of a "provider/model-name" identifier
// through a Registry. Backends are registered by name, never by type
// hierarchy.
package model
