package message

import "strings"

// Status is the delivery state of a message. Stored rows only ever hold
// sent, delivered or read; sending and failed exist on the client side.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusSending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return st, true
	}
	return "", false
}

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Persisted reports whether the status can appear on a stored row.
func (s Status) Persisted() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether moving from s to next is a forward promotion.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Persisted() || !next.Persisted() {
		return false
	}
	return next.rank() > s.rank()
}
