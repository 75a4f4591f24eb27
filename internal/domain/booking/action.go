package booking

import (
	"errors"
	"strings"
)

// Action is an operator- or client-initiated lifecycle command.
type Action string

const (
	ActionConfirm      Action = "CONFIRM"       // pending -> accepted
	ActionDispatch     Action = "DISPATCH"      // accepted -> en_route, payment-gated
	ActionMarkArrived  Action = "MARK_ARRIVED"  // en_route -> arrived
	ActionStartService Action = "START_SERVICE" // arrived -> in_service
	ActionComplete     Action = "COMPLETE"      // in_service -> completed
	ActionCancel       Action = "CANCEL"        // any non-terminal -> cancelled
)

var ErrInvalidAction = errors.New("invalid booking action")

// ParseAction normalizes (uppercases+trims) and validates an action string.
func ParseAction(in string) (Action, error) {
	action := Action(strings.ToUpper(strings.TrimSpace(in)))
	if action.Valid() {
		return action, nil
	}
	return "", ErrInvalidAction
}

// Valid reports whether action is one of the allowed action constants.
func (action Action) Valid() bool {
	switch action {
	case ActionConfirm, ActionDispatch, ActionMarkArrived, ActionStartService, ActionComplete, ActionCancel:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Action.
func (action Action) String() string {
	return string(action)
}
