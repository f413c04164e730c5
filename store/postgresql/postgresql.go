package postgresql

import (
	"github.com/auroilion/roilion/store/sqldb"

	_ "github.com/lib/pq" // import lib pq here rather than main
)

// PostgreSQL implements the bucket store for postgres
type PostgreSQL struct {
	*sqldb.SQLDatabase
}

// GetPostgreSQLDB returns a new postgres db or panics
func GetPostgreSQLDB(dbURL string) *PostgreSQL {
	return &PostgreSQL{sqldb.New("postgres", dbURL)}
}
