package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tutorhub/core"
	"github.com/trezcool/tutorhub/core/provision"
)

// unique_id breaks ties between duplicate emails so a slice is stable across runs
var profileOrdering = []core.DBOrdering{
	{Field: "email", Ascending: true},
	{Field: "COALESCE(unique_id, '')", Ascending: true},
}

// legacy rows may hold NULLs everywhere but in the filtered email column
type profileRow struct {
	Email    string      `db:"email"`
	UniqueID null.String `db:"unique_id"`
	UserType null.String `db:"user_type"`
}

func (row profileRow) toLegacyUser() provision.LegacyUser {
	return provision.LegacyUser{
		Email:    row.Email,
		UniqueID: row.UniqueID.String,
		UserType: row.UserType.String,
	}
}

type ProfileRepository struct {
	db core.DBQuerier
}

var _ provision.Source = (*ProfileRepository)(nil)

func NewProfileRepository(db core.DBQuerier) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (repo ProfileRepository) FetchUsers(ctx context.Context, limit, offset int) ([]provision.LegacyUser, error) {
	q := fmt.Sprintf(
		"SELECT email, unique_id, user_type FROM user_profiles WHERE email IS NOT NULL AND email <> '' ORDER BY %s LIMIT $1 OFFSET $2",
		orderBy(profileOrdering),
	)

	rows := make([]profileRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, q, limit, offset); err != nil {
		return nil, errors.Wrap(err, "querying user profiles")
	}

	users := make([]provision.LegacyUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toLegacyUser())
	}
	return users, nil
}

// CountUsers returns the number of profiles FetchUsers can return.
func (repo ProfileRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	q := "SELECT COUNT(*) FROM user_profiles WHERE email IS NOT NULL AND email <> ''"
	if err := repo.db.GetContext(ctx, &count, q); err != nil {
		return 0, errors.Wrap(err, "counting user profiles")
	}
	return count, nil
}

func orderBy(ords []core.DBOrdering) string {
	clauses := make([]string, 0, len(ords))
	for _, ord := range ords {
		clauses = append(clauses, ord.String())
	}
	return strings.Join(clauses, ", ")
}
