package authkit

import (
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// TokenTransport moves a token across one HTTP surface: a header, a cookie,
// or anything else that can carry a string.
type TokenTransport interface {
	// Name identifies the transport in missing-token diagnostics.
	Name() string
	// Get extracts the token from the request, or "" when absent.
	Get(c router.Context) string
	// Set attaches the token to the response.
	Set(c router.Context, token string, maxAge time.Duration)
	// Clear removes the token from the response surface.
	Clear(c router.Context)
}

// BearerTransport reads and writes the Authorization header using the
// configured scheme.
type BearerTransport struct {
	scheme string
}

var _ TokenTransport = (*BearerTransport)(nil)

func NewBearerTransport(scheme string) *BearerTransport {
	if scheme == "" {
		scheme = "Bearer"
	}
	return &BearerTransport{scheme: scheme}
}

func (t *BearerTransport) Name() string { return "header:" + router.HeaderAuthorization }

func (t *BearerTransport) Get(c router.Context) string {
	header := c.Header(router.HeaderAuthorization)
	if header == "" {
		return ""
	}
	prefix := t.scheme + " "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (t *BearerTransport) Set(c router.Context, token string, _ time.Duration) {
	c.SetHeader(router.HeaderAuthorization, t.scheme+" "+token)
}

func (t *BearerTransport) Clear(c router.Context) {
	c.SetHeader(router.HeaderAuthorization, "")
}

// CookieTransport reads and writes a session cookie described by
// CookieConfig.
type CookieTransport struct {
	cfg   CookieConfig
	clock Clock
}

var _ TokenTransport = (*CookieTransport)(nil)

func NewCookieTransport(cfg CookieConfig) *CookieTransport {
	if cfg.Name == "" {
		cfg.Name = defaultCookieName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CookieTransport{cfg: cfg, clock: time.Now}
}

func (t *CookieTransport) WithClock(clock Clock) *CookieTransport {
	if clock != nil {
		t.clock = clock
	}
	return t
}

func (t *CookieTransport) Name() string { return "cookie:" + t.cfg.Name }

func (t *CookieTransport) Get(c router.Context) string {
	return c.Cookies(t.cfg.Name)
}

func (t *CookieTransport) Set(c router.Context, token string, maxAge time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     t.cfg.Name,
		Value:    token,
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		Expires:  t.clock().Add(maxAge),
		HTTPOnly: t.cfg.HTTPOnly,
		Secure:   t.cfg.Secure,
		SameSite: t.cfg.SameSite,
	})
}

func (t *CookieTransport) Clear(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     t.cfg.Name,
		Value:    "",
		Path:     t.cfg.Path,
		Domain:   t.cfg.Domain,
		Expires:  t.clock().Add(-time.Hour * 24 * 365),
		HTTPOnly: t.cfg.HTTPOnly,
		Secure:   t.cfg.Secure,
		SameSite: t.cfg.SameSite,
	})
}

// ExtractToken tries each transport in order and returns the first token
// found. On miss it returns a missing-token error listing every location
// tried, so a client can see where the middleware looked.
func ExtractToken(c router.Context, transports ...TokenTransport) (string, error) {
	tried := make([]string, 0, len(transports))
	for _, t := range transports {
		if token := t.Get(c); token != "" {
			return token, nil
		}
		tried = append(tried, t.Name())
	}

	return "", ErrMissingToken.Clone().WithMetadata(map[string]any{
		"locations": tried,
	})
}
