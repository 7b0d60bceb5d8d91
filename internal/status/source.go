package status

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Source records where a transition request came from. It is kept for
// auditing only and never influences legality.
type Source string

const (
	SourceManual Source = "manual"
	SourceSensor Source = "sensor"
	SourceAPI    Source = "api"
)

// ParseSource converts a raw token to a Source.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("unknown update source %q", s)
	}
	return src, nil
}

// Valid reports whether src is a known update source.
func (src Source) Valid() bool {
	switch src {
	case SourceManual, SourceSensor, SourceAPI:
		return true
	}
	return false
}

func (src Source) String() string { return string(src) }

func (src *Source) UnmarshalText(text []byte) error {
	parsed, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*src = parsed
	return nil
}

func (src Source) MarshalText() ([]byte, error) {
	return []byte(src), nil
}

func (src *Source) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("update source must be a string: %w", err)
	}
	return src.UnmarshalText([]byte(raw))
}

func (src *Source) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return src.UnmarshalText([]byte(v))
	case []byte:
		return src.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into update source", value)
	}
}

func (src Source) Value() (driver.Value, error) {
	if !src.Valid() {
		return nil, fmt.Errorf("unknown update source %q", string(src))
	}
	return string(src), nil
}
