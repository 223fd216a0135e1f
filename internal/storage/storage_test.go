// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// STORE CONFORMANCE
// =============================================================================

// storeFactories returns every Store implementation under test.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			fs, err := OpenFileStore(filepath.Join(t.TempDir(), "local.json"), WithoutWatch())
			require.NoError(t, err)
			t.Cleanup(func() { fs.Close() })
			return fs
		},
		"sqlite": func(t *testing.T) Store {
			ss, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "local.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { ss.Close() })
			return ss
		},
	}
}

func TestStore_Conformance(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			_, ok := s.Get("missing")
			require.False(t, ok)
			require.NoError(t, s.Remove("missing"), "removing an absent key must succeed")

			require.NoError(t, s.Set("b", "2"))
			require.NoError(t, s.Set("a", "1"))
			require.NoError(t, s.Set("a", "one"))

			v, ok := s.Get("a")
			require.True(t, ok)
			require.Equal(t, "one", v)
			require.Equal(t, []string{"a", "b"}, s.Keys())

			require.NoError(t, s.Remove("a"))
			_, ok = s.Get("a")
			require.False(t, ok)
		})
	}
}

func TestTypedHelpers(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, SetInt64(s, KeyTokenExpiry, 1700000000000))
	v, ok := GetInt64(s, KeyTokenExpiry)
	require.True(t, ok)
	require.Equal(t, int64(1700000000000), v)

	require.NoError(t, s.Set(KeyTokenExpiry, "not-a-number"))
	_, ok = GetInt64(s, KeyTokenExpiry)
	require.False(t, ok, "garbage must read as absent")

	type payload struct {
		Until  int64  `json:"until"`
		Reason string `json:"reason"`
	}
	require.NoError(t, SetJSON(s, KeyAccountLockout, payload{Until: 42, Reason: "too many attempts"}))
	var got payload
	found, err := GetJSON(s, KeyAccountLockout, &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "too many attempts", got.Reason)

	require.NoError(t, s.Set(KeyUser, "{broken"))
	found, err = GetJSON(s, KeyUser, &got)
	require.True(t, found)
	require.Error(t, err)

	require.NoError(t, RemoveAll(s, KeyUser, KeyAccountLockout, KeyTokenExpiry))
	require.Empty(t, s.Keys())
}

// =============================================================================
// FILE STORE
// =============================================================================

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")

	first, err := OpenFileStore(path, WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, first.Set(KeyLastActivity, "123"))
	require.NoError(t, first.Close())

	second, err := OpenFileStore(path, WithoutWatch())
	require.NoError(t, err)
	defer second.Close()

	v, ok := second.Get(KeyLastActivity)
	require.True(t, ok)
	require.Equal(t, "123", v)
}

func TestFileStore_ReloadsExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.json")

	reloaded := make(chan struct{}, 1)
	watcher, err := OpenFileStore(path, WithReloadHook(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, err)
	defer watcher.Close()

	other, err := OpenFileStore(path, WithoutWatch())
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, other.Set(KeyAccountLockout, `{"until":1,"reason":"x"}`))

	require.Eventually(t, func() bool {
		v, ok := watcher.Get(KeyAccountLockout)
		return ok && v == `{"until":1,"reason":"x"}`
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("reload hook was not called")
	}
}

func TestFileStore_ClosedRejectsWrites(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "local.json"), WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close(), "Close must be idempotent")
	require.ErrorIs(t, fs.Set("k", "v"), ErrClosed)
}

// =============================================================================
// COOKIE JAR
// =============================================================================

func TestCookieJar_HttpOnlyHiddenFromApplication(t *testing.T) {
	u, _ := url.Parse("https://api.nexus.test/auth/refresh")
	jar := NewCookieJar(NewMemoryStore())

	jar.SetCookies(u, []*http.Cookie{
		{Name: "nexus_refresh", Value: "opaque-refresh", Path: "/", HttpOnly: true, Secure: true},
		{Name: KeyAuthToken, Value: "abc", Path: "/", Secure: true, SameSite: http.SameSiteStrictMode},
	})

	_, ok := jar.Value(u, "nexus_refresh")
	require.False(t, ok, "HttpOnly cookies must not be readable")
	require.True(t, jar.HasCookie(u, "nexus_refresh"))

	v, ok := jar.Value(u, KeyAuthToken)
	require.True(t, ok)
	require.Equal(t, "abc", v)

	sent := jar.Cookies(u)
	require.Len(t, sent, 2, "both cookies are sent to the origin")
}

func TestCookieJar_SecureOnlyOverHTTPS(t *testing.T) {
	secureURL, _ := url.Parse("https://api.nexus.test/")
	plainURL, _ := url.Parse("http://api.nexus.test/")
	jar := NewCookieJar(NewMemoryStore())

	jar.SetCookies(secureURL, []*http.Cookie{{Name: "s", Value: "1", Secure: true}})
	require.Len(t, jar.Cookies(secureURL), 1)
	require.Empty(t, jar.Cookies(plainURL))
}

func TestCookieJar_ExpiryAndDeletion(t *testing.T) {
	u, _ := url.Parse("http://localhost:8080/")
	store := NewMemoryStore()
	jar := NewCookieJar(store)
	now := time.Now()
	jar.now = func() time.Time { return now }

	jar.SetCookies(u, []*http.Cookie{{Name: "t", Value: "v", Expires: now.Add(time.Hour)}})
	_, ok := jar.Value(u, "t")
	require.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = jar.Value(u, "t")
	require.False(t, ok, "expired cookie must be absent")

	now = time.Now()
	jar.SetCookies(u, []*http.Cookie{{Name: "t", Value: "v", Expires: now.Add(time.Hour)}})
	jar.SetCookies(u, []*http.Cookie{{Name: "t", Value: "", Expires: time.Unix(0, 0)}})
	_, ok = jar.Value(u, "t")
	require.False(t, ok, "already-expired Expires deletes the cookie")
	_, ok = store.Get(KeyCookieJar)
	require.False(t, ok, "empty jar is removed from the store")
}

func TestCookieJar_DomainAttribute(t *testing.T) {
	origin, _ := url.Parse("https://api.nexus.test/")
	nested, _ := url.Parse("https://eu.api.nexus.test/")
	sibling, _ := url.Parse("https://www.nexus.test/")
	jar := NewCookieJar(NewMemoryStore())

	jar.SetCookies(origin, []*http.Cookie{
		{Name: "host", Value: "1"},
		{Name: "parent", Value: "2", Domain: ".nexus.test"},
		{Name: "foreign", Value: "3", Domain: "other.example"},
		{Name: "suffix", Value: "4", Domain: "com"},
	})

	for _, tt := range []struct {
		u    *url.URL
		name string
		want bool
	}{
		{origin, "host", true},
		{origin, "parent", true},
		{origin, "foreign", false},
		{origin, "suffix", false},
		{nested, "host", false},
		{nested, "parent", true},
		{sibling, "host", false},
		{sibling, "parent", true},
	} {
		_, ok := jar.Value(tt.u, tt.name)
		require.Equal(t, tt.want, ok, "%s on %s", tt.name, tt.u.Host)
	}
}

func TestCookieJar_IPHostIsHostOnly(t *testing.T) {
	u, _ := url.Parse("http://127.0.0.1:5000/")
	jar := NewCookieJar(NewMemoryStore())

	jar.SetCookies(u, []*http.Cookie{
		{Name: "plain", Value: "1"},
		{Name: "same", Value: "2", Domain: "127.0.0.1"},
		{Name: "named", Value: "3", Domain: "example.com"},
	})
	require.Len(t, jar.Cookies(u), 2)
	_, ok := jar.Value(u, "named")
	require.False(t, ok)
}

func TestCookieJar_SurvivesReopen(t *testing.T) {
	u, _ := url.Parse("http://localhost:8080/")
	path := filepath.Join(t.TempDir(), "local.json")

	fs, err := OpenFileStore(path, WithoutWatch())
	require.NoError(t, err)
	NewCookieJar(fs).SetCookies(u, []*http.Cookie{{Name: "t", Value: "v", MaxAge: 3600}})
	require.NoError(t, fs.Close())

	fs2, err := OpenFileStore(path, WithoutWatch())
	require.NoError(t, err)
	defer fs2.Close()

	v, ok := NewCookieJar(fs2).Value(u, "t")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
