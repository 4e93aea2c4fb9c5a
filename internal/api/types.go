package api

import "github.com/lamim/storyforge/pkg/models"

// Message represents a single message in the chat
type Message = models.Message

// Request is one streaming chat completion request
type Request struct {
	Messages []Message
	// Stage labels the request in logs and metrics ("plan" or "section")
	Stage string
}

// Chunk is one event of a provider stream. A provider using a separate reasoning channel
// fills Reasoning; everything else arrives in Content.
type Chunk struct {
	Reasoning string
	Content   string
	// Malformed is set when the event could not be mapped onto either channel.
	// Content then holds whatever text could be salvaged.
	Malformed bool
}
