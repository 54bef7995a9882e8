package domain

import (
	"fmt"
	"strings"
)

// NetworkStatus is the request state of a feed. Exactly one value holds at
// a time and it decides whether a new fetch may be issued.
type NetworkStatus string

const (
	NetworkIdle      NetworkStatus = "idle"
	NetworkLoading   NetworkStatus = "loading"
	NetworkFetchMore NetworkStatus = "fetchMore"
	NetworkError     NetworkStatus = "error"
)

// InFlight reports whether a request is outstanding
func (s NetworkStatus) InFlight() bool {
	return s == NetworkLoading || s == NetworkFetchMore
}

// StatusAction is a remote status mutation on a message
type StatusAction string

const (
	ActionSeen       StatusAction = "seen"
	ActionUnseen     StatusAction = "unseen"
	ActionRead       StatusAction = "read"
	ActionUnread     StatusAction = "unread"
	ActionArchived   StatusAction = "archived"
	ActionUnarchived StatusAction = "unarchived"
)

var allActions = []StatusAction{
	ActionSeen, ActionUnseen, ActionRead, ActionUnread, ActionArchived, ActionUnarchived,
}

// ParseStatusAction validates an action taken from a URL segment
func ParseStatusAction(s string) (StatusAction, error) {
	for _, a := range allActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// IsUnset reports whether the action clears a timestamp ("un" prefixed)
func (a StatusAction) IsUnset() bool {
	return strings.HasPrefix(string(a), "un")
}

// Base returns the set-direction action, e.g. unread -> read
func (a StatusAction) Base() StatusAction {
	return StatusAction(strings.TrimPrefix(string(a), "un"))
}

// Inverse returns the opposite action, e.g. read <-> unread
func (a StatusAction) Inverse() StatusAction {
	if a.IsUnset() {
		return a.Base()
	}
	return "un" + a
}
