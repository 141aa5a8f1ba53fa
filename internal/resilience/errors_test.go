package resilience

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	uv := &pgconn.PgError{Code: "23505", ConstraintName: "companies_domain_key"}
	assert.True(t, IsUniqueViolation(uv))
	assert.True(t, IsUniqueViolation(eris.Wrap(uv, "store: create company")))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(eris.New("plain failure")))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", eris.New("boom"), false},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"wrapped pg error", eris.Wrap(&pgconn.PgError{Code: "57P03"}, "ping"), true},
		{"string heuristic", eris.New("read tcp: connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
