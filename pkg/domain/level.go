package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is a permission level. Levels are totally ordered and a higher
// level entails every lower one.
type Level int

const (
	// LevelNone means no access. It is never stored on a grant.
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelDelete
)

var levelNames = map[Level]string{
	LevelNone:   "NONE",
	LevelRead:   "READ",
	LevelWrite:  "WRITE",
	LevelDelete: "DELETE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Valid reports whether l may appear on a grant or in a check
func (l Level) Valid() bool {
	return l >= LevelRead && l <= LevelDelete
}

// Entails reports whether holding l implies holding requested
func (l Level) Entails(requested Level) bool {
	return requested.Valid() && l >= requested
}

// MaxLevel returns the higher of a and b
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// ParseLevel parses READ, WRITE or DELETE (case-insensitive)
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "READ":
		return LevelRead, nil
	case "WRITE":
		return LevelWrite, nil
	case "DELETE":
		return LevelDelete, nil
	}
	return LevelNone, NewValidationError("invalid permission level: %q", s)
}

// MarshalJSON encodes the level by name
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError("permission level must be a string")
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML encodes the level by name
func (l Level) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// UnmarshalYAML decodes a level name
func (l *Level) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
