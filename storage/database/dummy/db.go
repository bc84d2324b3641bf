package dummydb

import (
	"sync"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/group"
	"github.com/trezcool/darasa/core/user"
)

type (
	DB struct {
		user    *userTable
		group   *groupTable
		session *sessionTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	groupTable struct {
		sync.RWMutex
		table map[string]*group.Group
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]*attendance.Session
		byKey map[string]string // composite key -> session ID
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		group: &groupTable{table: make(map[string]*group.Group)},
		session: &sessionTable{
			table: make(map[string]*attendance.Session),
			byKey: make(map[string]string),
		},
	}
	return db, nil
}
