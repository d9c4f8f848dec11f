// Package planner wraps the chat-completion service that proposes the
// next tabletop action for a task.
package planner

import "context"

// Message is one turn of the planning conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Planner produces the next response given the conversation so far.
type Planner interface {
	Plan(ctx context.Context, messages []Message) (string, error)
}
