// Package tokenizer estimates token counts for LLM context accounting using
// a fixed BPE vocabulary, seeded once per process and reused for the life of
// the program.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// messageOverhead is the fixed per-message structural overhead (role tag,
// block delimiters) added on top of raw content tokens.
const messageOverhead = 4

// ImageTokens is the fixed token cost assigned to an image block by the
// Context Store. The estimator itself never special-cases images; this
// constant lives here because it is the other half of token accounting that
// callers need alongside Count/CountMessage.
const ImageTokens = 1000

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, err
}

// Count returns the token count of text using the process-wide BPE
// vocabulary. The empty string always returns 0. Pure and deterministic:
// identical input yields identical output for the life of the process.
func Count(text string) int {
	if text == "" {
		return 0
	}
	e, encErr := encoding()
	if encErr != nil {
		// The vocabulary is embedded and loads deterministically; a failure
		// here means the dependency itself is broken, not the input. Fall
		// back to a conservative estimate rather than panicking mid-turn.
		return len(text)/4 + 1
	}
	n := len(e.Encode(text, nil, nil))
	if n == 0 {
		return 1
	}
	return n
}

// CountMessage returns Count(text) plus the fixed structural overhead
// covering role and block-boundary tokens.
func CountMessage(text string) int {
	return Count(text) + messageOverhead
}
