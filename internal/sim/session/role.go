package session

import "sort"

// Role is the pluggable strategy implementing one business's rules.
// Required methods define the action surface; the optional hooks below
// are detected by interface assertion, so a role implements only what it
// needs.
type Role interface {
	Key() string
	Name() string
	Intro() string

	// Init seeds role-specific fields into a fresh state.
	Init(st *State)
	// Start runs once when the player begins (or resumes into) the role.
	Start(st *State, api API)

	// Actions declares what the player can currently do and what each
	// action costs in hours. The dispatcher charges the hours before the
	// handler runs.
	Actions(st *State) []ActionSpec

	// Handle executes one action. It reports false when the role has no
	// handler for the id; the dispatcher logs a no-op in that case.
	// Outcomes are communicated through the log and the notice, never by
	// error returns.
	Handle(id string, st *State, api API, in ActionInput) bool

	// Story is a pure presentation hook.
	Story(st *State) string
}

// Optional hooks.
type HourHook interface {
	OnHour(st *State, api API)
}
type DayHook interface {
	OnNewDay(st *State, api API)
}
type TickHook interface {
	Tick(st *State, api API)
}
type AsciiHook interface {
	Ascii(st *State) (art, caption string)
}

type ActionSpec struct {
	ID      string
	Label   string
	Hours   int
	Enabled bool
	Tooltip string
}

// ActionInput carries the parameters the client attached to an action.
// It is journaled with every audit entry so recorded games replay.
type ActionInput struct {
	Item   string `json:"item,omitempty"`
	Price  int    `json:"price,omitempty"`
	Qty    int    `json:"qty,omitempty"`
	Amount int    `json:"amount,omitempty"`
	Option int    `json:"option,omitempty"`
}

var roleRegistry = map[string]Role{}

// RegisterRole adds a role implementation to the registry. Duplicate
// keys panic: that is a wiring bug, not a runtime condition.
func RegisterRole(r Role) {
	key := r.Key()
	if _, dup := roleRegistry[key]; dup {
		panic("session: duplicate role " + key)
	}
	roleRegistry[key] = r
}

func LookupRole(key string) (Role, bool) {
	r, ok := roleRegistry[key]
	return r, ok
}

func RoleKeys() []string {
	keys := make([]string, 0, len(roleRegistry))
	for k := range roleRegistry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
