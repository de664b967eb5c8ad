package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "sessionid"
	// SessionUserKey is the session field holding the user id
	SessionUserKey = "uid"

	DefaultSessionTTL = 14 * 24 * time.Hour
)

// NewSessionStore builds the server side session store. A nil storage
// keeps sessions in memory.
func NewSessionStore(cfg Config, storage fiber.Storage) *session.Store {
	ttl := cfg.GetSessionTTL()
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return session.New(session.Config{
		Expiration:     ttl,
		Storage:        storage,
		KeyLookup:      "cookie:" + SessionCookieName,
		CookiePath:     "/",
		CookieSecure:   cfg.GetCookieSecure(),
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteStrictMode,
	})
}

// Sessions wraps a session store with the user id conventions.
type Sessions struct {
	store *session.Store
}

func NewSessions(store *session.Store) *Sessions {
	return &Sessions{store: store}
}

// UserID returns the user id held by the request session, if any.
func (s *Sessions) UserID(c *fiber.Ctx) (uuid.UUID, bool, error) {
	sess, err := s.store.Get(c)
	if err != nil {
		return uuid.Nil, false, err
	}

	raw, ok := sess.Get(SessionUserKey).(string)
	if !ok || raw == "" {
		return uuid.Nil, false, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// Establish rotates the session id and binds it to user.
func (s *Sessions) Establish(c *fiber.Ctx, user *User) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return err
	}

	if err := sess.Regenerate(); err != nil {
		return err
	}

	sess.Set(SessionUserKey, user.ID.String())
	return sess.Save()
}

// Destroy drops the session and its cookie.
func (s *Sessions) Destroy(c *fiber.Ctx) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return err
	}
	return sess.Destroy()
}
