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

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
)

const invitationColumns = `id, email, first_name, last_name, role, status, invited_by, invited_at, expires_at,
	accepted_at, updated_at, token`

type invitationRow struct {
	ID         string      `db:"id"`
	Email      string      `db:"email"`
	FirstName  string      `db:"first_name"`
	LastName   string      `db:"last_name"`
	Role       string      `db:"role"`
	Status     string      `db:"status"`
	InvitedBy  null.String `db:"invited_by"`
	InvitedAt  time.Time   `db:"invited_at"`
	ExpiresAt  time.Time   `db:"expires_at"`
	AcceptedAt null.Time   `db:"accepted_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
	Token      string      `db:"token"`
}

func (row invitationRow) toInvitation() staff.Invitation {
	inv := staff.Invitation{
		ID:        row.ID,
		Email:     row.Email,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Role:      account.ProfileType(row.Role),
		Status:    staff.Status(row.Status),
		InvitedBy: row.InvitedBy.Ptr(),
		InvitedAt: row.InvitedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		Token:     row.Token,
	}
	if row.AcceptedAt.Valid {
		at := row.AcceptedAt.Time.UTC()
		inv.AcceptedAt = &at
	}
	return inv
}

type staffRepository struct {
	store *Store
}

func NewStaffRepository(store *Store) staff.Repository {
	return &staffRepository{store: store}
}

func (repo *staffRepository) CreateInvitation(ctx context.Context, inv staff.Invitation) (staff.Invitation, error) {
	var row invitationRow
	err := sqlx.GetContext(
		ctx, repo.store.ext(ctx), &row,
		`INSERT INTO staff_invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+invitationColumns,
		inv.ID,
		strings.ToLower(inv.Email),
		inv.FirstName,
		inv.LastName,
		string(inv.Role),
		string(inv.Status),
		null.StringFromPtr(inv.InvitedBy),
		inv.InvitedAt,
		inv.ExpiresAt,
		null.TimeFromPtr(inv.AcceptedAt),
		inv.UpdatedAt,
		inv.Token,
	)
	if err != nil {
		if isUniqueViolation(err, "staff_invitations_pending_email_key") {
			return staff.Invitation{}, staff.ErrDuplicatePendingInvitation
		}
		return staff.Invitation{}, errors.Wrap(err, "inserting invitation")
	}
	return row.toInvitation(), nil
}

func (repo *staffRepository) GetInvitation(ctx context.Context, id string) (staff.Invitation, error) {
	return repo.getOne(ctx, `SELECT `+invitationColumns+` FROM staff_invitations WHERE id = $1`, id)
}

func (repo *staffRepository) QueryInvitations(
	ctx context.Context,
	filter staff.QueryFilter,
	orderings ...core.DBOrdering,
) ([]staff.Invitation, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Email != "" {
		conds = append(conds, "email LIKE "+arg("%"+escapeLike(strings.ToLower(filter.Email))+"%"))
	}
	switch filter.Status {
	case "":
	case staff.StatusExpired:
		conds = append(conds, "status = 'pending'", "expires_at <= "+arg(filter.Now))
	default:
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}

	q := `SELECT ` + invitationColumns + ` FROM staff_invitations`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "invited_at"}}
	}
	ords := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		ords = append(ords, ord.String())
	}
	q += ` ORDER BY ` + strings.Join(append(ords, "id"), ", ")

	var rows []invitationRow
	if err := sqlx.SelectContext(ctx, repo.store.ext(ctx), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting invitations")
	}

	invs := make([]staff.Invitation, 0, len(rows))
	for _, row := range rows {
		invs = append(invs, row.toInvitation())
	}
	return invs, nil
}

// ClaimPendingInvitation only matches a pending row: of two racing claims, the second one blocks on the row
// lock, then re-checks the status and matches nothing.
func (repo *staffRepository) ClaimPendingInvitation(ctx context.Context, token string, at time.Time) (staff.Invitation, error) {
	return repo.getOne(
		ctx,
		`UPDATE staff_invitations
		SET status = 'accepted', accepted_at = $2, updated_at = $2
		WHERE token = $1 AND status = 'pending' AND expires_at > $2
		RETURNING `+invitationColumns,
		token, at,
	)
}

func (repo *staffRepository) CancelPendingInvitation(ctx context.Context, id string, at time.Time) (staff.Invitation, error) {
	return repo.getOne(
		ctx,
		`UPDATE staff_invitations
		SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING `+invitationColumns,
		id, at,
	)
}

func (repo *staffRepository) RotatePendingInvitationToken(
	ctx context.Context,
	id, token string,
	expiresAt, at time.Time,
) (staff.Invitation, error) {
	return repo.getOne(
		ctx,
		`UPDATE staff_invitations
		SET token = $2, expires_at = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+invitationColumns,
		id, token, expiresAt, at,
	)
}

func (repo *staffRepository) getOne(ctx context.Context, q string, args ...interface{}) (staff.Invitation, error) {
	var row invitationRow
	if err := sqlx.GetContext(ctx, repo.store.ext(ctx), &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return staff.Invitation{}, staff.ErrNotFound
		}
		return staff.Invitation{}, errors.Wrap(err, "querying invitation")
	}
	return row.toInvitation(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
