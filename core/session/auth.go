package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
)

var nowFunc = time.Now // mockable

// AccountResolver is the slice of the account service the authenticator needs.
type AccountResolver interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// Authenticator creates, resolves and destroys sessions.
type Authenticator struct {
	store    Store
	accounts AccountResolver
	ttl      time.Duration
}

func NewAuthenticator(store Store, accounts AccountResolver, conf *core.Config) *Authenticator {
	return &Authenticator{
		store:    store,
		accounts: accounts,
		ttl:      conf.Server.SessionTTL,
	}
}

// Open starts a session for acct and returns it. The session id is an opaque
// random identifier; it carries no account information itself.
func (a *Authenticator) Open(ctx context.Context, acct account.Account) (Session, error) {
	now := nowFunc().UTC()
	s := Session{
		ID:        uuid.New().String(),
		AccountID: acct.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.Save(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "saving session")
	}
	return s, nil
}

// Resolve maps a session id to its Account. A missing session and a session
// whose account was deleted both come back as ErrNoSession; nothing about
// which check failed is leaked.
func (a *Authenticator) Resolve(ctx context.Context, sessionID string) (account.Account, error) {
	if sessionID == "" {
		return account.Account{}, ErrNoSession
	}

	s, err := a.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Cause(err) == ErrNoSession {
			return account.Account{}, ErrNoSession
		}
		return account.Account{}, errors.Wrap(err, "getting session")
	}
	if !nowFunc().UTC().Before(s.ExpiresAt) {
		return account.Account{}, ErrNoSession
	}

	acct, err := a.accounts.GetByID(ctx, s.AccountID)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			return account.Account{}, ErrNoSession
		}
		return account.Account{}, errors.Wrap(err, "resolving session account")
	}
	return acct, nil
}

// Destroy ends the session. Destroying an absent session is a no-op.
func (a *Authenticator) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return a.store.Delete(ctx, sessionID)
}
