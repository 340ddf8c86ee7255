// Package inmemdb implements the repositories in memory, for tests and the "memory" database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/user"
)

type (
	DB struct {
		user     *userTable
		course   *courseTable
		planning *planningTable
		message  *messageTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	courseTable struct {
		table map[string]*course.Course
		mutex sync.RWMutex
	}

	planningTable struct {
		table map[string]*planning.SlotEntry // keyed day/slot
		mutex sync.RWMutex
	}

	messageTable struct {
		table map[string]*chat.Message
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:     &userTable{table: make(map[string]*user.User)},
		course:   &courseTable{table: make(map[string]*course.Course)},
		planning: &planningTable{table: make(map[string]*planning.SlotEntry)},
		message:  &messageTable{table: make(map[string]*chat.Message)},
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.course.mutex.Lock()
	db.course.table = make(map[string]*course.Course)
	db.course.mutex.Unlock()

	db.planning.mutex.Lock()
	db.planning.table = make(map[string]*planning.SlotEntry)
	db.planning.mutex.Unlock()

	db.message.mutex.Lock()
	db.message.table = make(map[string]*chat.Message)
	db.message.mutex.Unlock()
}
