package models

import (
	"fmt"
	"strings"
)

// Status is the subscription status an event leaves an account in.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrial     Status = "trial"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// AllStatuses lists every valid status in a stable order.
var AllStatuses = []Status{StatusActive, StatusTrial, StatusCancelled, StatusExpired}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusTrial, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether s ends the subscription (churn).
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

func (s Status) String() string { return string(s) }

// ParseStatus normalises case and whitespace and rejects unknown values.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}
