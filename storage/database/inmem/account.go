package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/academia/core/account"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	defer repo.db.lock(ctx)()

	acc.Email = strings.ToLower(acc.Email)
	for _, a := range repo.db.accounts {
		if a.Email == acc.Email {
			return account.Account{}, account.ErrEmailExists
		}
	}
	repo.db.accounts[acc.ID] = acc
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	defer repo.db.lock(ctx)()

	if filter.ID != "" {
		if acc, ok := repo.db.accounts[filter.ID]; ok && (filter.Email == "" || acc.Email == strings.ToLower(filter.Email)) {
			return acc, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	if filter.Email != "" {
		email := strings.ToLower(filter.Email)
		for _, acc := range repo.db.accounts {
			if acc.Email == email {
				return acc, nil
			}
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	defer repo.db.lock(ctx)()

	// only save mutable fields
	orig, ok := repo.db.accounts[acc.ID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	orig.PasswordHash = acc.PasswordHash
	orig.Phone = acc.Phone
	orig.EmailVerified = acc.EmailVerified
	orig.PhoneVerified = acc.PhoneVerified
	orig.LastLogin = acc.LastLogin
	orig.UpdatedAt = acc.UpdatedAt

	repo.db.accounts[acc.ID] = orig
	return orig, nil
}

func (repo *accountRepository) CreateProfile(ctx context.Context, p account.Profile) (account.Profile, error) {
	defer repo.db.lock(ctx)()

	if _, ok := repo.db.accounts[p.AccountID]; !ok {
		return account.Profile{}, account.ErrNotFound
	}
	repo.db.profiles[p.ID] = p
	return p, nil
}

func (repo *accountRepository) GetProfile(ctx context.Context, id string) (account.Profile, error) {
	defer repo.db.lock(ctx)()

	if p, ok := repo.db.profiles[id]; ok {
		return p, nil
	}
	return account.Profile{}, account.ErrProfileNotFound
}

func (repo *accountRepository) QueryProfiles(ctx context.Context, accountID string) ([]account.Profile, error) {
	defer repo.db.lock(ctx)()

	profiles := make([]account.Profile, 0)
	for _, p := range repo.db.profiles {
		if p.AccountID == accountID {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].CreatedAt.Before(profiles[j].CreatedAt) })
	return profiles, nil
}

func (repo *accountRepository) ActivateProfile(ctx context.Context, act account.ProfileActivation) (account.Profile, error) {
	defer repo.db.lock(ctx)()

	p, ok := repo.db.profiles[act.ProfileID]
	if !ok {
		return account.Profile{}, account.ErrProfileNotFound
	}
	if p.IsActive {
		return account.Profile{}, account.ErrAlreadyActivated
	}
	p.IsActive = true
	p.PreferredContactMethod = act.PreferredContactMethod
	if act.ContactPhone != "" {
		p.ContactPhone = act.ContactPhone
	}
	p.UpdatedAt = act.At

	repo.db.profiles[p.ID] = p
	return p, nil
}
