package domain

import "fmt"

// Action represents the type of trading action to be performed.
type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

// action string constants to avoid magic strings
const (
	actionStringHold = "hold"
	actionStringBuy  = "buy"
	actionStringSell = "sell"
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionHold:
		return actionStringHold
	case ActionBuy:
		return actionStringBuy
	case ActionSell:
		return actionStringSell
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case actionStringHold:
		*a = ActionHold
	case actionStringBuy:
		*a = ActionBuy
	case actionStringSell:
		*a = ActionSell
	default:
		return fmt.Errorf("invalid action: %s", b)
	}
	return nil
}
