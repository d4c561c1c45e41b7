package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsDeadlock(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"postgres serialization", &pgconn.PgError{Code: "40001"}, true},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped postgres", fmt.Errorf("claim: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, IsDeadlock(tc.err), tc.name)
	}
}

func TestExtractDBNameFromDSN(t *testing.T) {
	require.Equal(t, "ranking", extractDBNameFromDSN("host=db port=5432 user=u dbname=ranking sslmode=disable"))
	require.Equal(t, "ranking", extractDBNameFromDSN("u:p@tcp(db:3306)/ranking?parseTime=True"))
	require.Equal(t, "unknown", extractDBNameFromDSN("host=db"))
}
