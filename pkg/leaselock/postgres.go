package leaselock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps leases in the job_leases table.
type Postgres struct {
	db dbConn
}

func NewPostgres(db dbConn) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	var returnedKey string
	err := p.db.QueryRow(ctx, tryAcquireSQL, key, token, ttl.Milliseconds()).Scan(&returnedKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return returnedKey != "", nil
}

func (p *Postgres) Renew(ctx context.Context, key, token string, ttl time.Duration) error {
	var returnedKey string
	err := p.db.QueryRow(ctx, renewSQL, key, token, ttl.Milliseconds()).Scan(&returnedKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLost
	}
	return err
}

func (p *Postgres) Release(ctx context.Context, key, token string) error {
	_, err := p.db.Exec(ctx, releaseSQL, key, token)
	return err
}

const tryAcquireSQL = `
INSERT INTO job_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE job_leases.expires_at < now()
   OR job_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE job_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM job_leases
WHERE lease_key = $1 AND holder = $2;
`
