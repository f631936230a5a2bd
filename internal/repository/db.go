package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos groups repositories bound to the same connection or transaction.
type Repos struct {
	Requests RequestRepository
	Users    UserRepository
	History  RequestHistoryRepository
}

// NewRepos binds every repository to db.
func NewRepos(db DBTX) Repos {
	return Repos{
		Requests: NewRequestRepository(db),
		Users:    NewUserRepository(db),
		History:  NewRequestHistoryRepository(db),
	}
}

// TxRunner executes fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos Repos) error) error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside a LIKE pattern that
// declares ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
