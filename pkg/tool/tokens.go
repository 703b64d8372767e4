package tool

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

const truncatedSuffix = "... (truncated)"

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// CountTokens estimates the token count of text with the cl100k_base
// encoding, falling back to four characters per token.
func CountTokens(text string) int {
	c, err := getCodec()
	if err != nil {
		return len(text) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// Truncate shortens text to at most maxTokens tokens and marks the cut.
// maxTokens <= 0 disables the limit.
func Truncate(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}

	c, err := getCodec()
	if err != nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text, false
		}
		return strings.ToValidUTF8(text[:limit], "") + truncatedSuffix, true
	}

	ids, _, err := c.Encode(text)
	if err != nil || len(ids) <= maxTokens {
		return text, false
	}
	head, err := c.Decode(ids[:maxTokens])
	if err != nil {
		return text, false
	}
	return strings.ToValidUTF8(head, "") + truncatedSuffix, true
}
