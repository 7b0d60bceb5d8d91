// Package status defines the closed vocabulary of room states and update
// sources. Values are persisted as their string tokens, so the tokens must
// never change once rows have been written with them.
package status

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Status is the operational state of a room.
type Status string

const (
	Available      Status = "available"
	Waiting        Status = "waiting"
	SeeingProvider Status = "seeing_provider"
	NeedsCleaning  Status = "needs_cleaning"
	Cleaning       Status = "cleaning"
	Maintenance    Status = "maintenance"
	OutOfService   Status = "out_of_service"
)

var all = []Status{
	Available,
	Waiting,
	SeeingProvider,
	NeedsCleaning,
	Cleaning,
	Maintenance,
	OutOfService,
}

// All returns every status in declaration order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Parse converts a raw token to a Status, rejecting anything outside the catalog.
func Parse(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown room status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a catalog member.
func (s Status) Valid() bool {
	switch s {
	case Available, Waiting, SeeingProvider, NeedsCleaning, Cleaning, Maintenance, OutOfService:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// UnmarshalText rejects unknown tokens at query/form/JSON boundaries.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalJSON is explicit so that a JSON null or number is rejected too.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("room status must be a string: %w", err)
	}
	return s.UnmarshalText([]byte(raw))
}

// Scan validates stored tokens when rows are read back.
func (s *Status) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("room status is NULL")
	default:
		return fmt.Errorf("cannot scan %T into room status", value)
	}
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown room status %q", string(s))
	}
	return string(s), nil
}
