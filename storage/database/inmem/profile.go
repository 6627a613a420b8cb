package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/tutorhub/core/provision"
)

type ProfileRepository struct {
	db    *profileTable
	pkSeq int
}

var _ provision.Source = (*ProfileRepository)(nil)

func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db.profile}
}

// AddProfiles stores profiles as they are, blank emails included.
func (repo *ProfileRepository) AddProfiles(profiles ...provision.LegacyUser) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, p := range profiles {
		p := p
		repo.pkSeq++
		repo.db.table[repo.pkSeq] = &p
	}
}

// query returns the profiles with a non-empty email ordered by email, like the SQL store does.
func (repo *ProfileRepository) query() []provision.LegacyUser {
	users := make([]provision.LegacyUser, 0, len(repo.db.table))
	for _, p := range repo.db.table {
		if p.Email != "" {
			users = append(users, *p)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if c := strings.Compare(users[i].Email, users[j].Email); c != 0 {
			return c < 0
		}
		return users[i].UniqueID < users[j].UniqueID
	})
	return users
}

func (repo *ProfileRepository) FetchUsers(_ context.Context, limit, offset int) ([]provision.LegacyUser, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query()
	if offset >= len(users) {
		return []provision.LegacyUser{}, nil
	}
	users = users[offset:]
	if limit < len(users) {
		users = users[:limit]
	}
	return users, nil
}

func (repo *ProfileRepository) CountUsers(context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.query()), nil
}
