package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrNoChoices is returned when a runtime answers without any completion.
var ErrNoChoices = errors.New("no choices returned")

// Capability binds a Runtime to one model and exposes the single-turn
// system+input call the digest and plan steps use.
type Capability struct {
	Runtime   Runtime
	Model     string
	MaxTokens int
}

// Complete sends system and input as role-tagged messages and returns the
// first choice's content.
func (c Capability) Complete(ctx context.Context, system, input string, temperature float64) (string, error) {
	msgs := make([]Message, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, Message{Role: "user", Content: input})
	resp, err := c.Runtime.Generate(ctx, GenerateRequest{
		Model:       c.Model,
		Messages:    msgs,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
