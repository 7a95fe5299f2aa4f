// Package flow implements the conversation state machine that drives a model
// through alternating model and tool turns.
//
// A run starts in MODEL_TURN. When the latest assistant message requests tool
// calls and the run has tools, it moves to TOOL_TURN, executes every request
// sequentially in emission order and returns to MODEL_TURN. It ends when the
// model answers without tool calls, when a hook sets the stop flag, or when
// the step budget (MaxIterations) is exhausted. Every MODEL_TURN and every
// TOOL_TURN counts as one step.
package flow
