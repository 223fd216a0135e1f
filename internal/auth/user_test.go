// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustUser(t *testing.T, doc string) *User {
	t.Helper()
	u, err := ParseUser([]byte(doc))
	require.NoError(t, err)
	return u
}

func TestParseUser(t *testing.T) {
	u := mustUser(t, `{"_id":"64ab","username":"alice","email":"alice@example.com","profilePicture":"p.png","bookmarkedPosts":[1,"2",null],"theme":"dark"}`)

	require.Equal(t, "64ab", u.ID)
	require.Equal(t, "p.png", u.Avatar)
	require.Equal(t, []string{"1", "2"}, u.BookmarkedPosts)
	require.Equal(t, "alice", u.DisplayName())

	theme, ok := u.Field("theme")
	require.True(t, ok)
	require.JSONEq(t, `"dark"`, string(theme))

	data, err := json.Marshal(u)
	require.NoError(t, err)
	require.Contains(t, string(data), `"theme":"dark"`, "unmodelled fields survive a round trip")

	_, err = ParseUser([]byte(`[1,2]`))
	require.ErrorIs(t, err, ErrInvalidUser)
	_, err = ParseUser(nil)
	require.ErrorIs(t, err, ErrInvalidUser)
	_, err = ParseUser([]byte(`{"id":`))
	require.Error(t, err)
}

func TestDisplayNameFallbacks(t *testing.T) {
	require.Equal(t, "a@b.c", mustUser(t, `{"id":5,"email":"a@b.c"}`).DisplayName())
	require.Equal(t, "user 5", mustUser(t, `{"id":5}`).DisplayName())
}

func TestMergeUser(t *testing.T) {
	tests := []struct {
		name    string
		cached  string
		fresh   string
		pending string
		want    string
	}{
		{
			name:   "server wins for ordinary fields",
			cached: `{"id":1,"username":"old","role":"reader"}`,
			fresh:  `{"id":1,"username":"new","role":"author"}`,
			want:   `{"id":1,"username":"new","role":"author"}`,
		},
		{
			name:   "ordinary field omitted by server is dropped",
			cached: `{"id":1,"bio":"hello"}`,
			fresh:  `{"id":1}`,
			want:   `{"id":1}`,
		},
		{
			name:   "avatar and createdAt fall back to cache",
			cached: `{"id":1,"avatar":"a.png","createdAt":"2024-01-01T00:00:00Z"}`,
			fresh:  `{"id":1,"avatar":"","createdAt":null}`,
			want:   `{"id":1,"avatar":"a.png","createdAt":"2024-01-01T00:00:00Z"}`,
		},
		{
			name:   "server avatar replaces cached one",
			cached: `{"id":1,"avatar":"a.png"}`,
			fresh:  `{"id":1,"avatar":"b.png"}`,
			want:   `{"id":1,"avatar":"b.png"}`,
		},
		{
			name:   "profilePicture falls back to cache",
			cached: `{"id":1,"profilePicture":"p.png"}`,
			fresh:  `{"id":1}`,
			want:   `{"id":1,"profilePicture":"p.png"}`,
		},
		{
			name:    "pending bookmarks are unioned in order",
			cached:  `{"id":1,"bookmarkedPosts":[1]}`,
			fresh:   `{"id":1,"bookmarkedPosts":[2,3]}`,
			pending: `[3,4,"5"]`,
			want:    `{"id":1,"bookmarkedPosts":[2,3,4,"5"]}`,
		},
		{
			name:   "bookmarks fall back to cache when omitted",
			cached: `{"id":1,"bookmarkedPosts":[1,2]}`,
			fresh:  `{"id":1}`,
			want:   `{"id":1,"bookmarkedPosts":[1,2]}`,
		},
		{
			name:    "pending bookmarks without any list",
			fresh:   `{"id":1}`,
			pending: `[9]`,
			want:    `{"id":1,"bookmarkedPosts":[9]}`,
		},
		{
			name:   "no cache",
			fresh:  `{"id":1,"avatar":null}`,
			want:   `{"id":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cached *User
			if tt.cached != "" {
				cached = mustUser(t, tt.cached)
			}
			var pending []json.RawMessage
			if tt.pending != "" {
				require.NoError(t, json.Unmarshal([]byte(tt.pending), &pending))
			}

			got, err := json.Marshal(MergeUser(cached, mustUser(t, tt.fresh), pending))
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(got))
		})
	}
}
