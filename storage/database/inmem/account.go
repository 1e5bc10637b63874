package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/darasahq/darasa/core/account"
)

type accountRepo struct {
	db *DB
}

var _ account.Repository = (*accountRepo)(nil)

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepo{db: db}
}

func (r *accountRepo) CheckEmailUniqueness(_ context.Context, email string, exclAccts ...account.Account) error {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, acct := range r.db.accounts {
		if acct.Email != email {
			continue
		}
		var excluded bool
		for _, excl := range exclAccts {
			if excl.ID == acct.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (r *accountRepo) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.accounts {
		if existing.Email == acct.Email {
			return account.Account{}, account.ErrEmailExists
		}
		if acct.StudentCode != "" && existing.StudentCode == acct.StudentCode {
			return account.Account{}, account.ErrCodeExists
		}
	}

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	r.db.accounts[acct.ID] = acct
	return acct, nil
}

func (r *accountRepo) QueryAllAccounts(_ context.Context) ([]account.Account, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	accts := make([]account.Account, 0, len(r.db.accounts))
	for _, acct := range r.db.accounts {
		accts = append(accts, acct)
	}
	sortAccounts(accts)
	return accts, nil
}

func (r *accountRepo) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, acct := range r.db.accounts {
		switch {
		case filter.ID != "" && acct.ID == filter.ID,
			filter.Email != "" && acct.Email == filter.Email,
			filter.StudentCode != "" && acct.StudentCode == filter.StudentCode,
			filter.ResetToken != "" && acct.ResetToken == filter.ResetToken:
			return acct, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

// UpdateAccount writes the non-zero fields of acct. The role is never updated.
func (r *accountRepo) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	orig, ok := r.db.accounts[acct.ID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if acct.Name != "" {
		orig.Name = acct.Name
	}
	if acct.Email != "" {
		for _, existing := range r.db.accounts {
			if existing.ID != orig.ID && existing.Email == acct.Email {
				return account.Account{}, account.ErrEmailExists
			}
		}
		orig.Email = acct.Email
	}
	if acct.PictureURL != "" {
		orig.PictureURL = acct.PictureURL
	}
	if acct.PasswordHash != nil {
		orig.PasswordHash = acct.PasswordHash
	}
	orig.UpdatedAt = acct.UpdatedAt

	r.db.accounts[orig.ID] = orig
	return orig, nil
}

func (r *accountRepo) SetResetToken(_ context.Context, acctID, token string, expiry time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	acct, ok := r.db.accounts[acctID]
	if !ok {
		return account.ErrNotFound
	}
	acct.ResetToken = token
	acct.ResetExpiry = expiry
	r.db.accounts[acctID] = acct
	return nil
}

func (r *accountRepo) UpdatePassword(_ context.Context, acctID string, hash []byte) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	acct, ok := r.db.accounts[acctID]
	if !ok {
		return account.ErrNotFound
	}
	acct.PasswordHash = hash
	acct.ResetToken = ""
	acct.ResetExpiry = time.Time{}
	acct.UpdatedAt = time.Now().UTC()
	r.db.accounts[acctID] = acct
	return nil
}

func (r *accountRepo) DeleteAccountsByID(_ context.Context, ids ...string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := r.db.accounts[id]; !ok {
			continue
		}
		delete(r.db.accounts, id)
		delete(r.db.parentLinks, id)
		for _, children := range r.db.parentLinks {
			delete(children, id)
		}
		for _, students := range r.db.enrollments {
			delete(students, id)
		}
		n++
	}
	return n, nil
}

func (r *accountRepo) LinkParentChild(_ context.Context, parentID, childID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.db.parentLinks[parentID] == nil {
		r.db.parentLinks[parentID] = make(map[string]bool)
	}
	r.db.parentLinks[parentID][childID] = true
	return nil
}

func (r *accountRepo) UnlinkParentChild(_ context.Context, parentID, childID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.parentLinks[parentID][childID] {
		return account.ErrNotLinked
	}
	delete(r.db.parentLinks[parentID], childID)
	return nil
}

func (r *accountRepo) QueryChildren(_ context.Context, parentID string) ([]account.Account, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	children := make([]account.Account, 0, len(r.db.parentLinks[parentID]))
	for childID := range r.db.parentLinks[parentID] {
		if acct, ok := r.db.accounts[childID]; ok {
			children = append(children, acct)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func sortAccounts(accts []account.Account) {
	sort.Slice(accts, func(i, j int) bool {
		if accts[i].CreatedAt.Equal(accts[j].CreatedAt) {
			return accts[i].ID < accts[j].ID
		}
		return accts[i].CreatedAt.Before(accts[j].CreatedAt)
	})
}
