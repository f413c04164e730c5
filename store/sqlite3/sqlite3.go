package sqlite3

import (
	"github.com/auroilion/roilion/store/sqldb"

	_ "github.com/mattn/go-sqlite3" // import go-sqlite3 here rather than main
)

// SQLite3 implements the bucket store for sqlite3
type SQLite3 struct {
	*sqldb.SQLDatabase
}

// GetSQLite3DB returns a new sqlite3 db or panics. sqlite allows a single writer so the
// pool is limited to one connection.
func GetSQLite3DB(dbURL string) *SQLite3 {
	s := &SQLite3{sqldb.New("sqlite3", dbURL)}
	s.SetMaxOpenConns(1)
	return s
}
