package account

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core"
)

var (
	// errors
	ErrNotFound             = errors.New("account not found")
	ErrEmailExists          = errors.New("an account with this email already exists")
	ErrCodeExists           = errors.New("this code is already taken")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbidden            = errors.New("permission denied")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrNotLinked            = errors.New("accounts are not linked")

	nowFunc = time.Now // mockable

	// inserts racing the same generated code are retried with a fresh one
	codeInsertRetries = 3
)

type (
	// GetFilter selects a single Account by exactly one of its unique fields.
	GetFilter struct {
		ID          string
		Email       string
		StudentCode string
		ResetToken  string
	}

	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedAccounts ...Account) error
		CreateAccount(ctx context.Context, acct Account) (Account, error)
		QueryAllAccounts(ctx context.Context) ([]Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		UpdateAccount(ctx context.Context, acct Account) (Account, error)
		// SetResetToken stores both the token and its expiry; an empty token
		// clears both fields. Both are always written together.
		SetResetToken(ctx context.Context, acctID, token string, expiry time.Time) error
		// UpdatePassword stores a new password hash and clears any pending
		// reset token in the same write.
		UpdatePassword(ctx context.Context, acctID string, hash []byte) error
		DeleteAccountsByID(ctx context.Context, ids ...string) (int, error)

		LinkParentChild(ctx context.Context, parentID, childID string) error
		UnlinkParentChild(ctx context.Context, parentID, childID string) error
		QueryChildren(ctx context.Context, parentID string) ([]Account, error)
	}

	Service interface {
		CheckEmailUniqueness(ctx context.Context, email string, exclAccts ...Account) error
		Create(ctx context.Context, na NewAccount) (Account, error)
		QueryAll(ctx context.Context) ([]Account, error)
		GetByID(ctx context.Context, id string) (Account, error)
		GetByEmail(ctx context.Context, email string) (Account, error)
		GetByStudentCode(ctx context.Context, code string) (Account, error)
		Update(ctx context.Context, id string, ua UpdateAccount) (Account, error)
		Delete(ctx context.Context, ids ...string) error
		Authenticate(ctx context.Context, email, pwd string) (Account, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ValidateResetToken(ctx context.Context, token string) (Account, error)
		ConfirmPasswordReset(ctx context.Context, rp ResetAccountPassword) error
		LinkChild(ctx context.Context, parentID, studentCode string) (Account, error)
		UnlinkChild(ctx context.Context, parentID, childID string) error
		Children(ctx context.Context, parentID string) ([]Account, error)
	}

	service struct {
		repo         Repository
		mailSvc      core.EmailService
		resetTimeout time.Duration
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:         repo,
		mailSvc:      mailSvc,
		resetTimeout: conf.PasswordResetTimeoutDelta,
	}
}

func (svc *service) CheckEmailUniqueness(ctx context.Context, email string, exclAccts ...Account) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclAccts...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, na NewAccount) (Account, error) {
	now := nowFunc().UTC()
	acct := Account{
		Name:       na.Name,
		Email:      na.Email,
		Role:       na.Role,
		PictureURL: na.PictureURL,
		ProviderID: na.ProviderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	if acct.Role != RoleStudent {
		return svc.repo.CreateAccount(ctx, acct)
	}

	// students get a unique linking code; the pre-insert check does not fully
	// guard against concurrent generation of the same code, so an insert-time
	// collision gets a fresh code.
	var created Account
	var err error
	for attempt := 0; attempt < codeInsertRetries; attempt++ {
		acct.StudentCode, err = GenerateCode(svc.studentCodeExists(ctx), DefaultCodeLength)
		if err != nil {
			return Account{}, errors.Wrap(err, "generating student code")
		}
		created, err = svc.repo.CreateAccount(ctx, acct)
		if errors.Cause(err) == ErrCodeExists {
			continue
		}
		return created, err
	}
	return Account{}, errors.Wrap(err, "creating student account")
}

func (svc *service) studentCodeExists(ctx context.Context) func(code string) (bool, error) {
	return func(code string) (bool, error) {
		_, err := svc.repo.GetAccount(ctx, GetFilter{StudentCode: code})
		if err == nil {
			return true, nil
		}
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, err
	}
}

func (svc *service) QueryAll(ctx context.Context) ([]Account, error) {
	return svc.repo.QueryAllAccounts(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByStudentCode(ctx context.Context, code string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{StudentCode: core.CleanString(code)})
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateAccount) (Account, error) {
	acct := Account{
		ID:         id,
		Name:       ua.Name,
		Email:      ua.Email,
		PictureURL: ua.PictureURL,
		UpdatedAt:  nowFunc().UTC(),
	}
	if ua.EmailVerified != nil {
		acct.EmailVerified = *ua.EmailVerified
	}
	if ua.Password != "" {
		if err := acct.SetPassword(ua.Password); err != nil {
			return Account{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateAccount(ctx, acct)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	n, err := svc.repo.DeleteAccountsByID(ctx, ids...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Authenticate looks an Account up by email and verifies the password against
// the stored hash. Unknown email and wrong password fail identically so the
// response does not help account enumeration.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acct, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrAuthenticationFailed
		}
		return Account{}, errors.Wrap(err, "finding account by email")
	}
	if err = acct.CheckPassword(pwd); err != nil {
		return Account{}, ErrAuthenticationFailed
	}
	return acct, nil
}

func (svc *service) LinkChild(ctx context.Context, parentID, studentCode string) (Account, error) {
	child, err := svc.GetByStudentCode(ctx, studentCode)
	if err != nil {
		return Account{}, err
	}
	if err = svc.repo.LinkParentChild(ctx, parentID, child.ID); err != nil {
		return Account{}, err
	}
	return child, nil
}

func (svc *service) UnlinkChild(ctx context.Context, parentID, childID string) error {
	return svc.repo.UnlinkParentChild(ctx, parentID, childID)
}

func (svc *service) Children(ctx context.Context, parentID string) ([]Account, error) {
	return svc.repo.QueryChildren(ctx, parentID)
}

func (svc *service) sendPasswordResetMail(acct Account, token string) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Name  string
			Token string
		}{acct.Name, token},
	})
}

// RequireRole checks that the Account holds one of the allowed roles.
func RequireRole(acct Account, roles ...string) error {
	for _, role := range roles {
		if acct.Role == role {
			return nil
		}
	}
	return ErrForbidden
}
