package sqldb

import (
	"context"
	"time"

	"github.com/auroilion/roilion/metrics"
	"github.com/auroilion/roilion/ratelimit"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ ratelimit.Store = &SQLDatabase{}

// incrementQuery starts a new window when the stored one closed at or before $4 and
// otherwise adds a hit. Placeholders appear in order so sqlite binds them positionally.
const incrementQuery = `INSERT INTO ratelimit_bucket (bucket_key, hits, window_start, expires_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (bucket_key) DO UPDATE SET
	hits = CASE WHEN ratelimit_bucket.window_start <= $4 THEN 1 ELSE ratelimit_bucket.hits + 1 END,
	window_start = CASE WHEN ratelimit_bucket.window_start <= $4 THEN $2 ELSE ratelimit_bucket.window_start END,
	expires_at = CASE WHEN ratelimit_bucket.window_start <= $4 THEN $3 ELSE ratelimit_bucket.expires_at END
RETURNING bucket_key, hits, window_start`

// SQLDatabase implements the bucket store for sql databases
type SQLDatabase struct {
	*sqlx.DB
}

type bucketRow struct {
	Key         string `db:"bucket_key"`
	Hits        int    `db:"hits"`
	WindowStart int64  `db:"window_start"`
}

// New returns a new db with its tables created or panics
func New(dbType string, dbURL string) *SQLDatabase {
	s := &SQLDatabase{sqlx.MustOpen(dbType, dbURL)}
	s.CreateTables()
	return s
}

// CreateTables creates the database tables or panics
func (s *SQLDatabase) CreateTables() {
	s.MustExec(`create table if not exists ratelimit_bucket (
		bucket_key text not null,
		hits integer not null,
		window_start bigint not null,
		expires_at bigint not null,
		primary key (bucket_key)
	);

	create index if not exists ratelimit_bucket_expires_at on ratelimit_bucket (expires_at);`)
}

// Increment counts a hit for key. Times are stored as unix milliseconds.
func (s *SQLDatabase) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Bucket, error) {
	start := now.UnixMilli()
	cutoff := now.Add(-window).UnixMilli()
	expires := now.Add(window).UnixMilli()

	var row bucketRow
	err := s.GetContext(ctx, &row, incrementQuery, key, start, expires, cutoff)
	if err != nil {
		return ratelimit.Bucket{}, errors.Wrap(err, "SQLDatabase: failed to increment bucket")
	}

	return ratelimit.Bucket{
		Key:         row.Key,
		Count:       row.Hits,
		WindowStart: time.UnixMilli(row.WindowStart),
	}, nil
}

// RunTTLDelete deletes buckets whose window closed before now
func (s *SQLDatabase) RunTTLDelete(ctx context.Context, now time.Time) (int, error) {
	res, err := s.ExecContext(ctx, "DELETE FROM ratelimit_bucket WHERE expires_at <= $1", now.UnixMilli())
	if err != nil {
		return -1, errors.Wrap(err, "SQLDatabase.RunTTLDelete: failed to delete")
	}

	count, err := res.RowsAffected()
	if err != nil {
		return -1, errors.Wrap(err, "SQLDatabase.RunTTLDelete: failed to count rows")
	}

	metrics.ExpiredBuckets.Add(float64(count))
	return int(count), nil
}
