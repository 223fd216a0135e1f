// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// =============================================================================
// COOKIE JAR
// =============================================================================

// persistedCookie is the on-disk form of a cookie. http.Cookie loses most
// attributes when round-tripped through Cookies(), so the jar keeps its own.
type persistedCookie struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Domain   string        `json:"domain"`
	Path     string        `json:"path"`
	Expires  time.Time     `json:"expires,omitempty"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"httpOnly,omitempty"`
	HostOnly bool          `json:"hostOnly,omitempty"`
	SameSite http.SameSite `json:"sameSite,omitempty"`
}

func (c persistedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

func (c persistedCookie) matches(host string) bool {
	if c.HostOnly {
		return host == c.Domain
	}
	return domainMatch(host, c.Domain)
}

// CookieJar is an http.CookieJar whose contents live in a durable Store, so
// cookies survive restarts the way browser cookies do. It is intended for a
// client that talks to a single API origin.
//
// Server-set HttpOnly cookies (the refresh token) are attached to outgoing
// requests but Value refuses to return them.
type CookieJar struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	logger *log.Logger
}

// NewCookieJar creates a jar persisted under KeyCookieJar in store.
func NewCookieJar(store Store) *CookieJar {
	return &CookieJar{
		store:  store,
		now:    time.Now,
		logger: log.Default(),
	}
}

// SetLogger replaces the jar's logger.
func (j *CookieJar) SetLogger(logger *log.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	jar := j.loadLocked()
	host := canonicalHost(u)

	for _, c := range cookies {
		domain, hostOnly, ok := cookieDomain(host, c.Domain)
		if !ok {
			j.logger.Printf("COOKIE_REJECTED | name=%s domain=%s host=%s", c.Name, c.Domain, host)
			continue
		}
		pc := persistedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			HostOnly: hostOnly,
			SameSite: c.SameSite,
		}
		if pc.Path == "" || !strings.HasPrefix(pc.Path, "/") {
			pc.Path = "/"
		}
		switch {
		case c.MaxAge < 0:
			pc.Expires = now.Add(-time.Second)
		case c.MaxAge > 0:
			pc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			pc.Expires = c.Expires
		}

		jar = removeCookie(jar, pc.Name, pc.Domain, pc.Path)
		if !pc.expired(now) {
			jar = append(jar, pc)
		}
	}

	j.saveLocked(jar, now)
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	host := canonicalHost(u)
	secure := u.Scheme == "https"
	path := u.Path
	if path == "" {
		path = "/"
	}

	var out []*http.Cookie
	for _, c := range j.loadLocked() {
		if c.expired(now) || !c.matches(host) || !strings.HasPrefix(path, c.Path) {
			continue
		}
		if c.Secure && !secure {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Value returns a cookie value visible to application code for u. HttpOnly
// and expired cookies are reported as absent.
func (j *CookieJar) Value(u *url.URL, name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	host := canonicalHost(u)
	for _, c := range j.loadLocked() {
		if c.Name != name || c.HttpOnly || c.expired(now) || !c.matches(host) {
			continue
		}
		return c.Value, true
	}
	return "", false
}

// HasCookie reports whether an unexpired cookie named name exists for u,
// including HttpOnly cookies. The value is never exposed.
func (j *CookieJar) HasCookie(u *url.URL, name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	host := canonicalHost(u)
	for _, c := range j.loadLocked() {
		if c.Name == name && !c.expired(now) && c.matches(host) {
			return true
		}
	}
	return false
}

func (j *CookieJar) loadLocked() []persistedCookie {
	var jar []persistedCookie
	if _, err := GetJSON(j.store, KeyCookieJar, &jar); err != nil {
		j.logger.Printf("COOKIE_JAR_CORRUPT | error=%v", err)
		return nil
	}
	return jar
}

func (j *CookieJar) saveLocked(jar []persistedCookie, now time.Time) {
	live := jar[:0]
	for _, c := range jar {
		if !c.expired(now) {
			live = append(live, c)
		}
	}
	var err error
	if len(live) == 0 {
		err = j.store.Remove(KeyCookieJar)
	} else {
		err = SetJSON(j.store, KeyCookieJar, live)
	}
	if err != nil {
		j.logger.Printf("COOKIE_JAR_WRITE_FAILED | error=%v", err)
	}
}

func removeCookie(jar []persistedCookie, name, domain, path string) []persistedCookie {
	out := jar[:0]
	for _, c := range jar {
		if c.Name == name && c.Domain == domain && c.Path == path {
			continue
		}
		out = append(out, c)
	}
	return out
}

// cookieDomain resolves a Domain attribute set by host. An empty attribute, or
// one naming an IP address or a public suffix equal to host, gives a
// host-only cookie. Attributes host does not domain-match are rejected.
func cookieDomain(host, attr string) (domain string, hostOnly, ok bool) {
	attr = strings.TrimPrefix(strings.ToLower(attr), ".")
	if attr == "" {
		return host, true, true
	}
	if net.ParseIP(host) != nil {
		return host, true, attr == host
	}
	if suffix, _ := publicsuffix.PublicSuffix(attr); suffix == attr {
		return host, true, attr == host
	}
	if !domainMatch(host, attr) {
		return "", false, false
	}
	return attr, false, true
}

func canonicalHost(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
