package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	xutil "SignalPulse/pkg/util"
)

// Timestamp decodes the created_at shapes the document store emits:
// RFC3339 strings, epoch seconds or milliseconds, and {seconds, nanoseconds} objects.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, ok := xutil.ParseTime(s)
		if !ok {
			return fmt.Errorf("timestamp: unsupported string %q", s)
		}
		ts.Time = t
		return nil
	case '{':
		var obj struct {
			Seconds     int64 `json:"seconds"`
			Nanoseconds int64 `json:"nanoseconds"`
			// some exporters keep the underscore-prefixed names
			USeconds     int64 `json:"_seconds"`
			UNanoseconds int64 `json:"_nanoseconds"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		if obj.Seconds == 0 && obj.Nanoseconds == 0 {
			obj.Seconds, obj.Nanoseconds = obj.USeconds, obj.UNanoseconds
		}
		ts.Time = time.Unix(obj.Seconds, obj.Nanoseconds)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		ts.Time = xutil.FromEpoch(f)
		return nil
	}
}
