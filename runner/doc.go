// Package runner implements the run invocation contract: it validates the
// model configuration, resolves tools, normalizes image attachments, drives
// the flow state machine and converts every failure into a uniform Output.
//
// Nothing escapes Run as an error or panic. Each run ends with exactly one
// terminal stream event: complete on success, or error with Terminal set.
//
// A Runner is safe for concurrent use; runs share only the provider and tool
// registries.
package runner
