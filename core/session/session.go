package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNoSession is returned whenever a session id cannot be resolved to a live
// Account: missing session, expired session, or a session bound to an account
// that no longer exists. Callers cannot tell these apart.
var ErrNoSession = errors.New("not authenticated")

// Session is a server-side binding from an opaque identifier to an Account id.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	ExpiresAt time.Time `json:"expires_at"` // UTC
}

// Store persists sessions. Implementations must expire sessions at
// Session.ExpiresAt; Get on a missing or expired session returns ErrNoSession.
type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}
