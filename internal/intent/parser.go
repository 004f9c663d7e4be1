// Package intent maps a natural-language user message into a structured
// image-search intent using one LLM call, cached by message text.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/openai"
)

// ErrParse means the user message could not be turned into a structured
// query. There is no fallback: guessing intent could return misleading
// results, so the caller surfaces this to the user.
var ErrParse = errors.New("could not parse query")

// Chatter is the chat-completion interface the parser needs.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []openai.Message, jsonOnly bool) (string, error)
}

// Parsed is the structured intent extracted from a user message.
type Parsed struct {
	SearchQuery     string   `json:"search_query"`
	FormatFilter    []string `json:"format_filter"`
	ResponseMessage string   `json:"response_message"`

	// FromCache is set when the result was served from the parser cache,
	// for observability and user-facing messaging. Not persisted.
	FromCache bool `json:"-"`
}

// Parser extracts search intent via an LLM, with results cached by message.
type Parser struct {
	client Chatter
	cache  *cache.Gateway
	model  string
}

// NewParser creates a Parser using the given chat client and model name.
func NewParser(client Chatter, gateway *cache.Gateway, model string) *Parser {
	return &Parser{client: client, cache: gateway, model: model}
}

// Parse returns the structured intent for userMessage. Cache hits return
// immediately with FromCache set. On provider or decode failure the error
// wraps ErrParse.
func (p *Parser) Parse(ctx context.Context, userMessage string) (Parsed, error) {
	key := cache.ParserKey(userMessage)

	var result Parsed
	if p.cache.GetJSON(ctx, cache.KindParser, key, &result) {
		result.FromCache = true
		return result, nil
	}

	raw, err := p.client.Chat(ctx, p.model, buildPrompt(userMessage), true)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("query parser returned malformed JSON", "response", raw, "error", err)
		return Parsed{}, fmt.Errorf("%w: malformed parser response", ErrParse)
	}

	for i, f := range result.FormatFilter {
		result.FormatFilter[i] = strings.ToLower(strings.TrimSpace(f))
	}

	p.cache.Set(ctx, cache.KindParser, key, result, cache.TTLParser)
	return result, nil
}
