// Package tokens counts and truncates text in model tokens and keeps a
// running cost meter for the session.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter encodes text with cl100k_base. When the encoding cannot be loaded
// it falls back to an estimate of four characters per token.
type Counter struct {
	enc  *tiktoken.Tiktoken
	once sync.Once
	err  error
}

var defaultCounter = &Counter{}

// Count returns the number of tokens in text.
func Count(text string) int {
	return defaultCounter.Count(text)
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func Truncate(text string, maxTokens int) string {
	return defaultCounter.Truncate(text, maxTokens)
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	c.init()
	if c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Truncate returns text cut to at most maxTokens tokens. A non-positive
// limit returns the empty string.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	c.init()
	if c.enc == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return validPrefix(text[:limit])
	}

	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	// Token boundaries may split a multi-byte rune.
	return validPrefix(c.enc.Decode(ids[:maxTokens]))
}

func validPrefix(s string) string {
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func (c *Counter) init() {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
		if c.err != nil {
			c.enc = nil
		}
	})
}
