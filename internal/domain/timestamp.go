package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// serverTimestampToken is the placeholder the store replaces with its own
// clock when the value is written.
var serverTimestampToken = []byte(`{".sv":"timestamp"}`)

// Timestamp is a store-assigned time in Unix milliseconds. The zero value
// means "not set"; ServerTime asks the store to fill in its clock on write.
type Timestamp struct {
	Millis  int64
	pending bool
}

// ServerTime returns a Timestamp the store resolves on write
func ServerTime() Timestamp {
	return Timestamp{pending: true}
}

// IsZero reports whether the timestamp is unset
func (t Timestamp) IsZero() bool {
	return t.Millis == 0 && !t.pending
}

// Time converts a resolved timestamp to time.Time
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.Millis)
}

// MarshalJSON writes the server token, null, or the millisecond value
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch {
	case t.pending:
		return serverTimestampToken, nil
	case t.Millis == 0:
		return []byte("null"), nil
	}
	return json.Marshal(t.Millis)
}

// UnmarshalJSON reads a resolved millisecond value; null and unresolved
// tokens read as zero
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '-' && (data[0] < '0' || data[0] > '9') {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	t.Millis = int64(f)
	return nil
}
