package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const traceIDLength = 16

// NewTraceID generates a url-safe id used to correlate a request end to end.
// Falls back to a fixed marker if the entropy source fails, which keeps the
// request serviceable while making the failure visible in logs.
func NewTraceID() string {
	id, err := gonanoid.New(traceIDLength)
	if err != nil {
		return "trace-unavailable"
	}
	return id
}

// NewConversationID generates a server-side conversation id for requests that
// arrive without one.
func NewConversationID() string {
	id, err := gonanoid.New(traceIDLength)
	if err != nil {
		return "conv-unavailable"
	}
	return "conv_" + id
}
