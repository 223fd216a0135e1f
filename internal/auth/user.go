// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUser is returned when a user document is not a JSON object.
var ErrInvalidUser = errors.New("user document must be a JSON object")

// User is the cached profile of the signed-in user. The backend's document is
// kept whole so fields this client does not model survive a round trip; the
// typed fields are a read-only view of it.
type User struct {
	ID              string
	Username        string
	Email           string
	Role            string
	Avatar          string
	CreatedAt       string
	BookmarkedPosts []string

	doc map[string]json.RawMessage
}

// ParseUser decodes a user document.
func ParseUser(data []byte) (*User, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrInvalidUser
	}
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return newUser(doc), nil
}

func newUser(doc map[string]json.RawMessage) *User {
	u := &User{doc: doc}
	u.ID = scalarString(doc["id"])
	if u.ID == "" {
		u.ID = scalarString(doc["_id"])
	}
	u.Username = scalarString(doc["username"])
	u.Email = scalarString(doc["email"])
	u.Role = scalarString(doc["role"])
	u.Avatar = scalarString(doc["avatar"])
	if u.Avatar == "" {
		u.Avatar = scalarString(doc["profilePicture"])
	}
	u.CreatedAt = scalarString(doc["createdAt"])
	for _, raw := range rawArray(doc["bookmarkedPosts"]) {
		if id := scalarString(raw); id != "" {
			u.BookmarkedPosts = append(u.BookmarkedPosts, id)
		}
	}
	return u
}

// MarshalJSON returns the backend document as received (after merging).
func (u *User) MarshalJSON() ([]byte, error) {
	if u.doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(u.doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *User) UnmarshalJSON(data []byte) error {
	parsed, err := ParseUser(data)
	if err != nil {
		return err
	}
	*u = *parsed
	return nil
}

// Field returns the raw JSON of a document field.
func (u *User) Field(name string) (json.RawMessage, bool) {
	v, ok := u.doc[name]
	return v, ok
}

// DisplayName returns the best human-readable name.
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Email != "":
		return u.Email
	default:
		return "user " + u.ID
	}
}

// scalarString renders a JSON string or number as a string. Other values
// (null, objects, arrays, booleans) yield "".
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			return n.String()
		}
	}
	return ""
}

func rawArray(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) != nil {
		return nil
	}
	return arr
}

// isBlank reports whether a field is absent for merge purposes: missing,
// null, or an empty string.
func isBlank(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return true
	}
	s := string(raw)
	return s == "null" || strings.TrimSpace(s) == `""`
}
