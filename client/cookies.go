package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"places-server/logger"

	"github.com/goccy/go-json"
)

// KeySessionCookies holds the API's cookies for servers that authenticate
// with a session cookie instead of bearer tokens.
const KeySessionCookies = "session_cookies"

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PersistentJar is a cookie jar whose cookies for the API host survive
// restarts through Storage.
type PersistentJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	base    *url.URL
	storage Storage
}

// NewPersistentJar loads the cookies previously saved for baseURL.
func NewPersistentJar(baseURL string, storage Storage) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &PersistentJar{jar: jar, base: base, storage: storage}

	if raw, ok := storage.Get(KeySessionCookies); ok && raw != "" {
		var saved []storedCookie
		if err := json.Unmarshal([]byte(raw), &saved); err != nil {
			logger.Log.Warnw("ignoring unreadable session cookies", "err", err)
		} else {
			cookies := make([]*http.Cookie, 0, len(saved))
			for _, c := range saved {
				cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
			}
			jar.SetCookies(base, cookies)
		}
	}
	return j, nil
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	if u.Host != j.base.Host {
		return
	}

	current := j.jar.Cookies(j.base)
	if len(current) == 0 {
		if err := j.storage.Delete(KeySessionCookies); err != nil {
			logger.Log.Warnw("failed to clear session cookies", "err", err)
		}
		return
	}
	saved := make([]storedCookie, 0, len(current))
	for _, c := range current {
		saved = append(saved, storedCookie{Name: c.Name, Value: c.Value})
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		logger.Log.Warnw("failed to encode session cookies", "err", err)
		return
	}
	if err := j.storage.Set(KeySessionCookies, string(raw)); err != nil {
		logger.Log.Warnw("failed to persist session cookies", "err", err)
	}
}

func hasSessionCookies(s Storage) bool {
	raw, ok := s.Get(KeySessionCookies)
	return ok && raw != "" && raw != "[]"
}
