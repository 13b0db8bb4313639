package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const conversationCookie = "tablevoice_conversation"

// CookieBinder ties a browser to its conversation through a signed and
// encrypted cookie holding the session id.
type CookieBinder struct {
	sc *securecookie.SecureCookie
}

// NewCookieBinder creates a binder. Nil keys are generated, so cookies
// from an earlier process stop decoding.
func NewCookieBinder(hashKey, blockKey []byte) (*CookieBinder, error) {
	if hashKey == nil {
		hashKey = securecookie.GenerateRandomKey(64)
	}
	if blockKey == nil {
		blockKey = securecookie.GenerateRandomKey(32)
	}
	if hashKey == nil || blockKey == nil {
		return nil, fmt.Errorf("generating cookie keys")
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("cookie block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int((24 * time.Hour).Seconds()))
	return &CookieBinder{sc: sc}, nil
}

// Bind sets the cookie for sessionID.
func (b *CookieBinder) Bind(w http.ResponseWriter, r *http.Request, sessionID string) error {
	encoded, err := b.sc.Encode(conversationCookie, map[string]string{"sid": sessionID})
	if err != nil {
		return fmt.Errorf("encoding conversation cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     conversationCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return nil
}

// SessionID returns the bound session id, if the request carries a valid
// cookie.
func (b *CookieBinder) SessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(conversationCookie)
	if err != nil {
		return "", false
	}
	value := map[string]string{}
	if err := b.sc.Decode(conversationCookie, c.Value, &value); err != nil {
		return "", false
	}
	sid := value["sid"]
	return sid, sid != ""
}

// Clear expires the cookie, used when it names a conversation that no
// longer exists.
func (b *CookieBinder) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: conversationCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
}
