// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
)

// mergeRule decides how a field of the fresh backend user is reconciled with
// the cached one.
type mergeRule int

const (
	// serverWins takes the backend value; a field the backend omits is dropped.
	serverWins mergeRule = iota

	// serverElseCached takes the backend value when present, otherwise keeps
	// the cached one. Used for fields some backend versions omit.
	serverElseCached

	// serverElseCachedWithPending is serverElseCached followed by a union
	// with the ids queued locally but not yet synced.
	serverElseCachedWithPending
)

// userMergeRules lists every field with a non-default rule. Fields not listed
// use serverWins.
var userMergeRules = map[string]mergeRule{
	"avatar":          serverElseCached,
	"profilePicture":  serverElseCached,
	"createdAt":       serverElseCached,
	"bookmarkedPosts": serverElseCachedWithPending,
}

// MergeUser reconciles a freshly fetched user with the cached copy. pending
// holds locally queued bookmark ids. Either of cached and pending may be nil.
func MergeUser(cached, fresh *User, pending []json.RawMessage) *User {
	out := make(map[string]json.RawMessage, len(fresh.doc))
	for k, v := range fresh.doc {
		out[k] = v
	}

	for field, rule := range userMergeRules {
		if rule == serverWins {
			continue
		}
		value, present := out[field]
		if isBlank(value) {
			present = false
			delete(out, field)
		}
		if !present && cached != nil {
			if cv, ok := cached.Field(field); ok && !isBlank(cv) {
				value, present = cv, true
			}
		}
		if rule == serverElseCachedWithPending && len(pending) > 0 {
			value, present = unionIDs(value, pending), true
		}
		if present {
			out[field] = value
		}
	}

	return newUser(out)
}

// unionIDs appends the pending ids missing from list, keeping list's order.
func unionIDs(list json.RawMessage, pending []json.RawMessage) json.RawMessage {
	items := rawArray(list)
	seen := make(map[string]bool, len(items)+len(pending))
	for _, it := range items {
		seen[scalarString(it)] = true
	}
	for _, p := range pending {
		id := scalarString(p)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, p)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return list
	}
	return data
}
