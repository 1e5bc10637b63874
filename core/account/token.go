package account

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

// resetTokenBytes is the entropy of a password reset token before hex encoding.
const resetTokenBytes = 32

func makeResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}
	return hex.EncodeToString(buf), nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequestPasswordReset issues a reset token for the account registered under
// email and mails it out. Whether the email exists or not is not reported:
// an unknown email is a silent no-op.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding account by email")
	}

	token, err := makeResetToken()
	if err != nil {
		return err
	}
	expiry := nowFunc().UTC().Add(svc.resetTimeout)
	if err = svc.repo.SetResetToken(ctx, acct.ID, token, expiry); err != nil {
		return errors.Wrap(err, "storing reset token")
	}

	svc.sendPasswordResetMail(acct, token)
	return nil
}

// ValidateResetToken resolves a reset token to its Account. A token is valid
// iff it matches a stored token and its expiry has not passed.
func (svc *service) ValidateResetToken(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return Account{}, ErrInvalidToken
	}

	acct, err := svc.repo.GetAccount(ctx, GetFilter{ResetToken: token})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidToken
		}
		return Account{}, errors.Wrap(err, "finding account by reset token")
	}

	if !tokensEqual(acct.ResetToken, token) {
		return Account{}, ErrInvalidToken
	}
	if acct.ResetExpiry.IsZero() || !nowFunc().UTC().Before(acct.ResetExpiry) {
		return Account{}, ErrInvalidToken
	}
	return acct, nil
}

// ConfirmPasswordReset consumes a reset token: the new password is stored
// (re-hashed) and the token and its expiry are cleared in the same write,
// so a store failure can never leave a live token behind a changed password.
// A consumed token cannot be used again.
func (svc *service) ConfirmPasswordReset(ctx context.Context, rp ResetAccountPassword) error {
	// boundary validation normally catches this; checked again here so a weak
	// password can never reach the store no matter the caller
	if len(rp.Password) < pwdMinLen {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdMinLenText})
	}

	acct, err := svc.ValidateResetToken(ctx, rp.Token)
	if err != nil {
		return err
	}

	var upd Account
	if err = upd.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if err = svc.repo.UpdatePassword(ctx, acct.ID, upd.PasswordHash); err != nil {
		return errors.Wrap(err, "storing new password")
	}
	return nil
}
