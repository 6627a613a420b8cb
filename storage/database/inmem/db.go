package inmemdb

import (
	"sync"

	"github.com/trezcool/tutorhub/core/provision"
)

type (
	DB struct {
		profile *profileTable
	}

	profileTable struct {
		sync.RWMutex
		table map[int]*provision.LegacyUser
	}
)

func Open() (*DB, error) {
	db := &DB{
		profile: &profileTable{table: make(map[int]*provision.LegacyUser)},
	}
	return db, nil
}
