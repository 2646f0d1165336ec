package inmemdb

import (
	"sync"

	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

// DB is a process-local store guarded by a single lock. It backs tests and the "memory" engine.
type DB struct {
	mu sync.RWMutex

	users      map[string]user.User
	classes    map[string]school.Class
	students   map[string]school.Student
	attendance map[string]school.AttendanceRecord
}

func New() *DB {
	return &DB{
		users:      make(map[string]user.User),
		classes:    make(map[string]school.Class),
		students:   make(map[string]school.Student),
		attendance: make(map[string]school.AttendanceRecord),
	}
}
