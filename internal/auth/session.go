// Package auth gates service calls on the viewing session. A 401 from the
// service becomes a sign-in redirect rather than an error state.
package auth

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/sells-group/shotsense-cli/internal/model"
)

// Session is the credential context of one client. The cookie jar holds the
// service's session cookie; the user is known once GET /user succeeded.
type Session struct {
	mu   sync.RWMutex
	user *model.User
	jar  http.CookieJar
}

// NewSession creates a session around jar. A nil jar gets an empty
// in-memory one.
func NewSession(jar http.CookieJar) *Session {
	if jar == nil {
		// cookiejar.New only fails on a bad PublicSuffixList.
		jar, _ = cookiejar.New(nil)
	}
	return &Session{jar: jar}
}

// Jar returns the cookie jar to hand to the service client.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// SetUser records the signed-in user. nil clears it.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

// Cookies returns the cookies the jar would send to u.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// Restore loads previously saved cookies for u into the jar.
func (s *Session) Restore(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.jar.SetCookies(u, cookies)
}
