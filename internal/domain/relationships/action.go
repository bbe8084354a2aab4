package relationships

import "fmt"

// Action is a mutating relationship action
type Action int

const (
	ActionFollow Action = iota + 1
	ActionUnfollow
	ActionRemoveFollower
	ActionBlock
	ActionUnblock
)

var actionNames = map[Action]string{
	ActionFollow:         "follow",
	ActionUnfollow:       "unfollow",
	ActionRemoveFollower: "remove_follower",
	ActionBlock:          "block",
	ActionUnblock:        "unblock",
}

// String returns the wire name of the action
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction converts a wire name into an Action
func ParseAction(s string) (Action, error) {
	for action, name := range actionNames {
		if name == s {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrInvalidOperation, s)
}

// MarshalText implements encoding.TextMarshaler
func (a Action) MarshalText() ([]byte, error) {
	if _, ok := actionNames[a]; !ok {
		return nil, fmt.Errorf("%w: unknown action %d", ErrInvalidOperation, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ActionNames lists the wire names of every action
func ActionNames() []string {
	return []string{"follow", "unfollow", "remove_follower", "block", "unblock"}
}
