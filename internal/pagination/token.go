// Package pagination encodes the opaque continuation tokens handed out by
// descending, time-ordered listings.
package pagination

import (
	"encoding/base64"
	"encoding/json"

	registrystore "github.com/chirino/chat-service/internal/registry/store"
)

// Position is the last row of a page. The next page resumes strictly after it in
// (time desc, id desc) order.
type Position struct {
	UnixTime int64  `json:"t"`
	ID       string `json:"id"`
}

// Encode returns the opaque token for p.
func Encode(p Position) string {
	// An int64 and a string always marshal.
	data, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a token produced by Encode. An empty token yields nil.
func Decode(token string) (*Position, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, invalid()
	}
	var p Position
	if err := json.Unmarshal(data, &p); err != nil || p.ID == "" {
		return nil, invalid()
	}
	return &p, nil
}

// After reports whether a row at (unixTime, id) comes after p in listing order.
func (p *Position) After(unixTime int64, id string) bool {
	if p == nil {
		return true
	}
	return unixTime < p.UnixTime || (unixTime == p.UnixTime && id < p.ID)
}

// Less orders rows most recent first, breaking ties by descending id.
func Less(aTime int64, aID string, bTime int64, bID string) bool {
	if aTime != bTime {
		return aTime > bTime
	}
	return aID > bID
}

// Trim cuts rows fetched with limit+1 down to limit and returns the token for the
// next page, or "" when rows were exhausted.
func Trim[T any](rows []T, limit int, position func(T) Position) ([]T, string) {
	if limit <= 0 || len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, Encode(position(rows[len(rows)-1]))
}

func invalid() error {
	return &registrystore.ValidationError{Field: "continuationToken", Message: "malformed continuation token"}
}
