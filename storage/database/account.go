package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/account"
)

// unique constraint names, must match the migrations
const (
	accountEmailKey       = "account_email_key"
	accountStudentCodeKey = "account_student_code_key"
)

// uniqueViolation returns the violated constraint name for a Postgres
// unique-violation error, or "" for anything else.
func uniqueViolation(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint
	}
	return ""
}

type accountRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	Role          string         `db:"role"`
	StudentCode   sql.NullString `db:"student_code"`
	PictureURL    string         `db:"picture_url"`
	ProviderID    string         `db:"provider_id"`
	EmailVerified bool           `db:"email_verified"`
	PasswordHash  []byte         `db:"password_hash"`
	ResetToken    sql.NullString `db:"reset_token"`
	ResetExpiry   sql.NullTime   `db:"reset_expiry"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func newAccountRow(acct account.Account) accountRow {
	return accountRow{
		ID:            acct.ID,
		Name:          acct.Name,
		Email:         acct.Email,
		Role:          acct.Role,
		StudentCode:   sql.NullString{String: acct.StudentCode, Valid: acct.StudentCode != ""},
		PictureURL:    acct.PictureURL,
		ProviderID:    acct.ProviderID,
		EmailVerified: acct.EmailVerified,
		PasswordHash:  acct.PasswordHash,
		ResetToken:    sql.NullString{String: acct.ResetToken, Valid: acct.ResetToken != ""},
		ResetExpiry:   sql.NullTime{Time: acct.ResetExpiry, Valid: !acct.ResetExpiry.IsZero()},
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}
}

func (row accountRow) account() account.Account {
	return account.Account{
		ID:            row.ID,
		Name:          row.Name,
		Email:         row.Email,
		Role:          row.Role,
		StudentCode:   row.StudentCode.String,
		PictureURL:    row.PictureURL,
		ProviderID:    row.ProviderID,
		EmailVerified: row.EmailVerified,
		PasswordHash:  row.PasswordHash,
		ResetToken:    row.ResetToken.String,
		ResetExpiry:   row.ResetExpiry.Time.UTC(),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

type accountRepo struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepo)(nil)

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepo{db: db}
}

func (r *accountRepo) CheckEmailUniqueness(ctx context.Context, email string, exclAccts ...account.Account) error {
	exclIDs := make([]string, 0, len(exclAccts))
	for _, acct := range exclAccts {
		exclIDs = append(exclIDs, acct.ID)
	}

	const q = `SELECT EXISTS (SELECT 1 FROM account WHERE email = $1 AND id::text != ALL($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, email, pq.Array(exclIDs)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return account.ErrEmailExists
	}
	return nil
}

func (r *accountRepo) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	row := newAccountRow(acct)
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	const q = `
	INSERT INTO account (id, name, email, role, student_code, picture_url, provider_id, email_verified,
	                     password_hash, reset_token, reset_expiry, created_at, updated_at)
	VALUES (:id, :name, :email, :role, :student_code, :picture_url, :provider_id, :email_verified,
	        :password_hash, :reset_token, :reset_expiry, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		switch uniqueViolation(err) {
		case accountEmailKey:
			return account.Account{}, account.ErrEmailExists
		case accountStudentCodeKey:
			return account.Account{}, account.ErrCodeExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return row.account(), nil
}

func (r *accountRepo) QueryAllAccounts(ctx context.Context) ([]account.Account, error) {
	const q = `SELECT * FROM account ORDER BY created_at`
	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}

	accts := make([]account.Account, len(rows))
	for i, row := range rows {
		accts[i] = row.account()
	}
	return accts, nil
}

func (r *accountRepo) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var cond string
	var arg interface{}
	switch {
	case filter.ID != "":
		// the id may be caller-supplied and not a well-formed uuid; comparing
		// as text keeps that a not-found instead of a cast error
		cond, arg = "id::text = $1", filter.ID
	case filter.Email != "":
		cond, arg = "email = $1", filter.Email
	case filter.StudentCode != "":
		cond, arg = "student_code = $1", filter.StudentCode
	case filter.ResetToken != "":
		cond, arg = "reset_token = $1", filter.ResetToken
	default:
		return account.Account{}, errors.New("empty account filter")
	}

	var row accountRow
	if err := r.db.GetContext(ctx, &row, "SELECT * FROM account WHERE "+cond, arg); err != nil {
		if err == sql.ErrNoRows {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "getting account")
	}
	return row.account(), nil
}

// UpdateAccount writes the non-zero fields of acct. The role is never updated.
func (r *accountRepo) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	sets := []string{"updated_at = :updated_at"}
	if acct.Name != "" {
		sets = append(sets, "name = :name")
	}
	if acct.Email != "" {
		sets = append(sets, "email = :email")
	}
	if acct.PictureURL != "" {
		sets = append(sets, "picture_url = :picture_url")
	}
	if acct.PasswordHash != nil {
		sets = append(sets, "password_hash = :password_hash")
	}

	q := fmt.Sprintf("UPDATE account SET %s WHERE id = :id RETURNING *", strings.Join(sets, ", "))
	rows, err := r.db.NamedQueryContext(ctx, q, newAccountRow(acct))
	if err != nil {
		if uniqueViolation(err) == accountEmailKey {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return account.Account{}, account.ErrNotFound
	}
	var row accountRow
	if err = rows.StructScan(&row); err != nil {
		return account.Account{}, errors.Wrap(err, "scanning account")
	}
	return row.account(), nil
}

func (r *accountRepo) SetResetToken(ctx context.Context, acctID, token string, expiry time.Time) error {
	const q = `UPDATE account SET reset_token = $2, reset_expiry = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, acctID,
		sql.NullString{String: token, Valid: token != ""},
		sql.NullTime{Time: expiry, Valid: token != ""},
	)
	if err != nil {
		return errors.Wrap(err, "setting reset token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *accountRepo) UpdatePassword(ctx context.Context, acctID string, hash []byte) error {
	const q = `
	UPDATE account SET password_hash = $2, reset_token = NULL, reset_expiry = NULL, updated_at = $3
	WHERE id::text = $1`
	res, err := r.db.ExecContext(ctx, q, acctID, hash, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *accountRepo) DeleteAccountsByID(ctx context.Context, ids ...string) (int, error) {
	const q = `DELETE FROM account WHERE id::text = ANY($1)`
	res, err := r.db.ExecContext(ctx, q, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting accounts")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting accounts")
}

func (r *accountRepo) LinkParentChild(ctx context.Context, parentID, childID string) error {
	const q = `
	INSERT INTO parent_child (parent_id, child_id, created_at) VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, parentID, childID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "linking accounts")
	}
	return nil
}

func (r *accountRepo) UnlinkParentChild(ctx context.Context, parentID, childID string) error {
	// child_id comes straight from the request path; text comparison keeps a
	// malformed id a not-linked instead of a cast error
	const q = `DELETE FROM parent_child WHERE parent_id = $1 AND child_id::text = $2`
	res, err := r.db.ExecContext(ctx, q, parentID, childID)
	if err != nil {
		return errors.Wrap(err, "unlinking accounts")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return account.ErrNotLinked
	}
	return nil
}

func (r *accountRepo) QueryChildren(ctx context.Context, parentID string) ([]account.Account, error) {
	const q = `
	SELECT a.* FROM account a
	INNER JOIN parent_child pc ON pc.child_id = a.id
	WHERE pc.parent_id = $1
	ORDER BY a.name`
	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, q, parentID); err != nil {
		return nil, errors.Wrap(err, "querying children")
	}

	accts := make([]account.Account, len(rows))
	for i, row := range rows {
		accts[i] = row.account()
	}
	return accts, nil
}
