package engine

import (
	"fmt"
	"sync"
)

// RWLocker is a read-write locker interface
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// NoopLocker is a no-op locker, used for engines with their own concurrency control
type NoopLocker struct{}

// Lock is a no-op
func (NoopLocker) Lock() {}

// Unlock is a no-op
func (NoopLocker) Unlock() {}

// RLock is a no-op
func (NoopLocker) RLock() {}

// RUnlock is a no-op
func (NoopLocker) RUnlock() {}

// DBCmd identifies a statement in QueryMap
type DBCmd int

// Query is a statement with dialect-specific variants
type Query struct {
	Sqlite   string
	Postgres string
}

// QueryMap keeps statements of a storage by command, one variant per dialect
type QueryMap struct {
	queries map[DBCmd]Query
}

// NewQueryMap makes empty QueryMap
func NewQueryMap() *QueryMap {
	return &QueryMap{queries: map[DBCmd]Query{}}
}

// Add sets dialect-specific variants of the command
func (q *QueryMap) Add(cmd DBCmd, query Query) *QueryMap {
	q.queries[cmd] = query
	return q
}

// AddSame sets the same statement for all dialects
func (q *QueryMap) AddSame(cmd DBCmd, query string) *QueryMap {
	return q.Add(cmd, Query{Sqlite: query, Postgres: query})
}

// Pick returns statement of the command for the given engine type
func (q *QueryMap) Pick(dbType Type, cmd DBCmd) (string, error) {
	query, ok := q.queries[cmd]
	if !ok {
		return "", fmt.Errorf("unsupported command %d", cmd)
	}
	switch dbType {
	case Sqlite:
		return query.Sqlite, nil
	case Postgres:
		return query.Postgres, nil
	}
	return "", fmt.Errorf("unsupported database type %q", dbType)
}
