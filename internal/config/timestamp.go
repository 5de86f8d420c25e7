package config

import (
	"encoding/json"
	"time"
)

// TimeUnix is a time.Time that unmarshals from an RFC3339 string, for the
// expiry dates attached to static provider/account config entries.
type TimeUnix time.Time

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (t *TimeUnix) UnmarshalText(text []byte) error {
	parsed, err := time.Parse(time.RFC3339, string(text))
	if err != nil {
		return err
	}
	*t = TimeUnix(parsed)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimeUnix) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

// Time returns the underlying time.Time.
func (t TimeUnix) Time() time.Time {
	return time.Time(t)
}
