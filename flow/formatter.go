package flow

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/hupe1980/agentloop/model"
)

// TruncationError reports model output cut off at the configured token cap.
type TruncationError struct {
	MaxOutputTokens int
}

func (e *TruncationError) Error() string {
	return fmt.Sprintf("model output truncated at the max_output_tokens limit of %d; raise the limit or shorten the task", e.MaxOutputTokens)
}

// FormatError reports a JSON-mode answer that could not be parsed. Raw holds
// the unmodified model text.
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("response is not valid JSON: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Formatted is the post-processed final answer.
type Formatted struct {
	Text string

	// Structured holds the parsed value in JSON mode.
	Structured any
}

// FormatResponse post-processes the final model response. In JSON mode the
// text is stripped of code fences and parsed; otherwise it passes through.
func FormatResponse(resp *model.Response, cfg model.Config) (Formatted, error) {
	if resp == nil {
		return Formatted{}, nil
	}
	if resp.Truncated {
		return Formatted{Text: resp.Message.Text()}, &TruncationError{MaxOutputTokens: cfg.OutputTokens()}
	}

	text := resp.Message.Text()
	if !cfg.JSONMode {
		return Formatted{Text: text}, nil
	}

	body := StripCodeFence(text)
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return Formatted{Text: text}, &FormatError{Raw: text, Err: err}
	}
	return Formatted{Text: body, Structured: v}, nil
}

// StripCodeFence removes a surrounding ``` or ```lang fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	// A language tag runs up to the first whitespace.
	tag := strings.IndexFunc(s, func(r rune) bool { return !isTagRune(r) })
	if tag > 0 && unicode.IsSpace(rune(s[tag])) {
		s = s[tag:]
	}
	return strings.TrimSpace(s)
}

func isTagRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("+-_.#", r)
}
