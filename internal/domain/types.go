// Package domain holds the payload and error types shared by the mediator,
// the conversation monitor and the upstream forwarder.
package domain

// ChatRequest is the subset of a chat completion body the gateway inspects.
// Every other field is left in the raw body and forwarded untouched.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is a single message in a chat request.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// LastMessage returns the final message of the conversation, or false when
// there are none.
func (r *ChatRequest) LastMessage() (ChatMessage, bool) {
	if r == nil || len(r.Messages) == 0 {
		return ChatMessage{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}
