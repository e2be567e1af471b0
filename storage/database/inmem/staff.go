package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/staff"
)

type staffRepository struct {
	db *DB
}

func NewStaffRepository(db *DB) staff.Repository {
	return &staffRepository{db: db}
}

func (repo *staffRepository) CreateInvitation(ctx context.Context, inv staff.Invitation) (staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	inv.Email = strings.ToLower(inv.Email)
	for _, i := range repo.db.invitations {
		if i.Status == staff.StatusPending && i.Email == inv.Email {
			return staff.Invitation{}, staff.ErrDuplicatePendingInvitation
		}
	}
	repo.db.invitations[inv.ID] = inv
	return inv, nil
}

func (repo *staffRepository) GetInvitation(ctx context.Context, id string) (staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	if inv, ok := repo.db.invitations[id]; ok {
		return inv, nil
	}
	return staff.Invitation{}, staff.ErrNotFound
}

func (repo *staffRepository) QueryInvitations(
	ctx context.Context,
	filter staff.QueryFilter,
	orderings ...core.DBOrdering,
) ([]staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	invs := make([]staff.Invitation, 0, len(repo.db.invitations))
	for _, inv := range repo.db.invitations {
		if filter.Email != "" && !strings.Contains(inv.Email, filter.Email) {
			continue
		}
		switch filter.Status {
		case "":
		case staff.StatusExpired:
			if !inv.IsExpired(filter.Now) {
				continue
			}
		default:
			if inv.Status != filter.Status {
				continue
			}
		}
		invs = append(invs, inv)
	}

	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "invited_at"}}
	}
	sort.SliceStable(invs, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareInvitations(invs[i], invs[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return invs[i].ID < invs[j].ID
	})
	return invs, nil
}

func (repo *staffRepository) ClaimPendingInvitation(ctx context.Context, token string, at time.Time) (staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	for id, inv := range repo.db.invitations {
		if inv.Token != token || inv.Status != staff.StatusPending || !at.Before(inv.ExpiresAt) {
			continue
		}
		inv.Status = staff.StatusAccepted
		inv.AcceptedAt = &at
		inv.UpdatedAt = at
		repo.db.invitations[id] = inv
		return inv, nil
	}
	return staff.Invitation{}, staff.ErrNotFound
}

func (repo *staffRepository) CancelPendingInvitation(ctx context.Context, id string, at time.Time) (staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	inv, ok := repo.db.invitations[id]
	if !ok || inv.Status != staff.StatusPending {
		return staff.Invitation{}, staff.ErrNotFound
	}
	inv.Status = staff.StatusCancelled
	inv.UpdatedAt = at
	repo.db.invitations[id] = inv
	return inv, nil
}

func (repo *staffRepository) RotatePendingInvitationToken(
	ctx context.Context,
	id, token string,
	expiresAt, at time.Time,
) (staff.Invitation, error) {
	defer repo.db.lock(ctx)()

	inv, ok := repo.db.invitations[id]
	if !ok || inv.Status != staff.StatusPending {
		return staff.Invitation{}, staff.ErrNotFound
	}
	inv.Token = token
	inv.ExpiresAt = expiresAt
	inv.UpdatedAt = at
	repo.db.invitations[id] = inv
	return inv, nil
}

func compareInvitations(a, b staff.Invitation, field string) int {
	switch field {
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(string(a.Role), string(b.Role))
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "invited_at":
		return compareTimes(a.InvitedAt, b.InvitedAt)
	case "expires_at":
		return compareTimes(a.ExpiresAt, b.ExpiresAt)
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
