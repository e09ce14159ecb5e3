package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const defaultCookieDomain = ".youtube.com"

type Cookie struct {
	Name    string `json:"name" yaml:"name"`
	Value   string `json:"value" yaml:"value"`
	Domain  string `json:"domain,omitempty" yaml:"domain"`
	Path    string `json:"path,omitempty" yaml:"path"`
	Secure  bool   `json:"secure,omitempty" yaml:"secure"`
	Expires int64  `json:"expires,omitempty" yaml:"expires"`
}

// AuthMaterial is the session blob used to fetch access-restricted sources.
type AuthMaterial struct {
	Cookies   []Cookie
	UserAgent string
}

func (a AuthMaterial) Empty() bool {
	return len(a.Cookies) == 0
}

type rawAuthMaterial struct {
	Cookies   json.RawMessage `json:"cookies"`
	UserAgent string          `json:"user_agent"`
}

// ParseAuthMaterial decodes the stored secret. "cookies" may be a
// "name=value; name2=value2" string or a list of cookie objects.
func ParseAuthMaterial(blob []byte) (AuthMaterial, error) {
	var raw rawAuthMaterial
	if err := json.Unmarshal(blob, &raw); err != nil {
		return AuthMaterial{}, fmt.Errorf("decode auth material: %w", err)
	}

	am := AuthMaterial{UserAgent: raw.UserAgent}
	if len(raw.Cookies) == 0 {
		return am, nil
	}

	var s string
	if err := json.Unmarshal(raw.Cookies, &s); err == nil {
		am.Cookies = ParseCookieString(s)
		return am, nil
	}

	var list []Cookie
	if err := json.Unmarshal(raw.Cookies, &list); err != nil {
		return AuthMaterial{}, fmt.Errorf("decode cookies: %w", err)
	}
	for _, c := range list {
		if c.Name == "" || c.Value == "" {
			continue
		}
		am.Cookies = append(am.Cookies, c.withDefaults())
	}
	return am, nil
}

func ParseCookieString(s string) []Cookie {
	var out []Cookie
	for _, pair := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value}.withDefaults())
	}
	return out
}

func (c Cookie) withDefaults() Cookie {
	if c.Domain == "" {
		c.Domain = defaultCookieDomain
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Expires == 0 {
		c.Expires = 9999999999
	}
	return c
}
