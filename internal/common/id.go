package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique session ID with the "ses_" prefix
func NewSessionID() string {
	return "ses_" + uuid.New().String()
}

// NewRequestID generates a correlation id for one inbound request
func NewRequestID() string {
	return uuid.New().String()
}
