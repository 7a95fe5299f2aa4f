// Package core provides the foundational conversation types shared by every
// other agentloop package:
//
//   - Message (role-tagged, ordered parts, optional tool call requests)
//   - Part (closed union of text and image segments)
//   - ToolCallRequest (a model's request to invoke a named tool)
//   - ImageInput (caller supplied attachment prior to normalization)
//
// Messages are treated as immutable once appended to a run's conversation.
// Helpers that need to hand a sequence to external code (hooks, providers)
// use CloneMessages so the original run state cannot be edited in place.
package core
