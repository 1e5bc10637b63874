// Package inmem provides in-memory repository implementations, mainly for tests.
package inmem

import (
	"sync"

	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/classroom"
)

type DB struct {
	mu          sync.RWMutex
	accounts    map[string]account.Account
	classes     map[string]classroom.Class
	enrollments map[string]map[string]bool // classID -> studentIDs
	parentLinks map[string]map[string]bool // parentID -> childIDs
}

func NewDB() *DB {
	return &DB{
		accounts:    make(map[string]account.Account),
		classes:     make(map[string]classroom.Class),
		enrollments: make(map[string]map[string]bool),
		parentLinks: make(map[string]map[string]bool),
	}
}
