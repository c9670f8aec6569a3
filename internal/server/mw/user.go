package mw

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mozillians/internal/access"
	"mozillians/internal/profiles"
	"mozillians/internal/store"
)

const (
	CtxProfile      = "profile"
	CtxSessionToken = "session_token"
)

type SessionLookup interface {
	Get(ctx context.Context, token string) (*store.Session, error)
}

type ProfileLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*profiles.Profile, error)
}

// LoadUser resolves the session cookie to a profile. Requests without a
// valid session continue anonymously.
func LoadUser(logger *zap.Logger, cookieName string, sessions SessionLookup, people ProfileLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		sess, err := sessions.Get(ctx, token)
		if err != nil {
			if !errors.Is(err, store.ErrSessionNotFound) {
				logger.Warn("session lookup failed", zap.Error(err), zap.String("request_id", c.GetString(CtxRequestID)))
			}
			c.Next()
			return
		}
		p, err := people.Get(ctx, sess.ProfileID)
		if err != nil {
			if !errors.Is(err, profiles.ErrNotFound) {
				logger.Warn("profile lookup failed", zap.Error(err), zap.String("profile_id", sess.ProfileID.String()))
			}
			c.Next()
			return
		}
		c.Set(CtxProfile, p)
		c.Set(CtxSessionToken, token)
		c.Next()
	}
}

// CurrentProfile returns the logged in profile or nil.
func CurrentProfile(c *gin.Context) *profiles.Profile {
	v, ok := c.Get(CtxProfile)
	if !ok {
		return nil
	}
	p, _ := v.(*profiles.Profile)
	return p
}

// Caller is the access subject of the request; nil for anonymous users.
func Caller(c *gin.Context) access.Subject {
	if p := CurrentProfile(c); p != nil {
		return p
	}
	return nil
}
