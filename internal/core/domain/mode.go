package domain

import "fmt"

// Mode selects the remote analysis engine for a query.
type Mode string

const (
	ModeFast    Mode = "fast"
	ModeDeep    Mode = "deep"
	ModeCodemap Mode = "codemap"
)

// ModeToEngine maps a Mode to the engine id the remote service expects.
var ModeToEngine = map[Mode]string{
	ModeFast:    "multihop_faster",
	ModeDeep:    "agent",
	ModeCodemap: "codemap",
}

// Modes lists the supported modes in display order.
var Modes = []Mode{ModeFast, ModeDeep, ModeCodemap}

// EngineID returns the engine id for m.
func (m Mode) EngineID() string {
	return ModeToEngine[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := ModeToEngine[m]
	return ok
}

// ParseMode converts s to a Mode. An empty string selects ModeFast.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeFast, nil
	}
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}
