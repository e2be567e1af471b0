package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core/account"
)

const (
	accountColumns = `id, email, phone, email_verified, phone_verified, password_hash, created_at, updated_at, last_login`
	profileColumns = `id, account_id, type, first_name, last_name, preferred_name, contact_email, contact_phone,
		preferred_contact_method, is_active, created_at, updated_at`
)

type (
	accountRow struct {
		ID            string      `db:"id"`
		Email         string      `db:"email"`
		Phone         null.String `db:"phone"`
		EmailVerified bool        `db:"email_verified"`
		PhoneVerified bool        `db:"phone_verified"`
		PasswordHash  null.Bytes  `db:"password_hash"`
		CreatedAt     time.Time   `db:"created_at"`
		UpdatedAt     time.Time   `db:"updated_at"`
		LastLogin     null.Time   `db:"last_login"`
	}

	profileRow struct {
		ID                     string      `db:"id"`
		AccountID              string      `db:"account_id"`
		Type                   string      `db:"type"`
		FirstName              string      `db:"first_name"`
		LastName               string      `db:"last_name"`
		PreferredName          null.String `db:"preferred_name"`
		ContactEmail           null.String `db:"contact_email"`
		ContactPhone           null.String `db:"contact_phone"`
		PreferredContactMethod null.String `db:"preferred_contact_method"`
		IsActive               bool        `db:"is_active"`
		CreatedAt              time.Time   `db:"created_at"`
		UpdatedAt              time.Time   `db:"updated_at"`
	}
)

func (row accountRow) toAccount() account.Account {
	return account.Account{
		ID:            row.ID,
		Email:         row.Email,
		Phone:         row.Phone.String,
		EmailVerified: row.EmailVerified,
		PhoneVerified: row.PhoneVerified,
		PasswordHash:  row.PasswordHash.Bytes,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		LastLogin:     row.LastLogin.Time.UTC(),
	}
}

func (row profileRow) toProfile() account.Profile {
	return account.Profile{
		ID:                     row.ID,
		AccountID:              row.AccountID,
		Type:                   account.ProfileType(row.Type),
		FirstName:              row.FirstName,
		LastName:               row.LastName,
		PreferredName:          row.PreferredName.String,
		ContactEmail:           row.ContactEmail.String,
		ContactPhone:           row.ContactPhone.String,
		PreferredContactMethod: row.PreferredContactMethod.String,
		IsActive:               row.IsActive,
		CreatedAt:              row.CreatedAt.UTC(),
		UpdatedAt:              row.UpdatedAt.UTC(),
	}
}

// nullString maps "" to NULL
func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time { return null.NewTime(t, !t.IsZero()) }

type accountRepository struct {
	store *Store
}

func NewAccountRepository(store *Store) account.Repository {
	return &accountRepository{store: store}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	var row accountRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+accountColumns,
		acc.ID,
		strings.ToLower(acc.Email),
		nullString(acc.Phone),
		acc.EmailVerified,
		acc.PhoneVerified,
		null.NewBytes(acc.PasswordHash, len(acc.PasswordHash) > 0),
		acc.CreatedAt,
		acc.UpdatedAt,
		nullTime(acc.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err, "accounts_email_key") {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ID != "" {
		args = append(args, filter.ID)
		conds = append(conds, "id = $1")
	}
	if filter.Email != "" {
		args = append(args, strings.ToLower(filter.Email))
		conds = append(conds, "lower(email) = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`SELECT `+accountColumns+` FROM accounts WHERE `+strings.Join(conds, " AND "),
		args...,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	var row accountRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`UPDATE accounts
		SET password_hash = $2, phone = $3, email_verified = $4, phone_verified = $5, last_login = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+accountColumns,
		acc.ID,
		null.NewBytes(acc.PasswordHash, len(acc.PasswordHash) > 0),
		nullString(acc.Phone),
		acc.EmailVerified,
		acc.PhoneVerified,
		nullTime(acc.LastLogin),
		acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	return row.toAccount(), nil
}

func (repo *accountRepository) CreateProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	var row profileRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+profileColumns,
		p.ID,
		p.AccountID,
		string(p.Type),
		p.FirstName,
		p.LastName,
		nullString(p.PreferredName),
		nullString(p.ContactEmail),
		nullString(p.ContactPhone),
		nullString(p.PreferredContactMethod),
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return account.Profile{}, errors.Wrap(err, "inserting profile")
	}
	return row.toProfile(), nil
}

func (repo *accountRepository) GetProfile(ctx context.Context, id string) (account.Profile, error) {
	var row profileRow
	err := sqlx.GetContext(ctx, repo.store.ext(ctx), &row, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Profile{}, account.ErrProfileNotFound
		}
		return account.Profile{}, errors.Wrap(err, "selecting profile")
	}
	return row.toProfile(), nil
}

func (repo *accountRepository) QueryProfiles(ctx context.Context, accountID string) ([]account.Profile, error) {
	var rows []profileRow
	err := sqlx.SelectContext(
		ctx, repo.store.ext(ctx), &rows,
		`SELECT `+profileColumns+` FROM profiles WHERE account_id = $1 ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting profiles")
	}

	profiles := make([]account.Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.toProfile())
	}
	return profiles, nil
}

// ActivateProfile only updates an inactive profile: of two racing activations, the second one matches no row.
func (repo *accountRepository) ActivateProfile(ctx context.Context, act account.ProfileActivation) (account.Profile, error) {
	var row profileRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`UPDATE profiles
		SET is_active = true, preferred_contact_method = $2, contact_phone = COALESCE($3, contact_phone), updated_at = $4
		WHERE id = $1 AND is_active = false
		RETURNING `+profileColumns,
		act.ProfileID,
		nullString(act.PreferredContactMethod),
		nullString(act.ContactPhone),
		act.At,
	)
	if err == nil {
		return row.toProfile(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return account.Profile{}, errors.Wrap(err, "activating profile")
	}

	if _, err = repo.GetProfile(ctx, act.ProfileID); err != nil {
		return account.Profile{}, err
	}
	return account.Profile{}, account.ErrAlreadyActivated
}
