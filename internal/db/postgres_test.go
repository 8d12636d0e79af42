package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-rca/bugsys/internal/config"
)

func TestBuildPostgresURL(t *testing.T) {
	t.Run("database url wins", func(t *testing.T) {
		got, err := buildPostgresURL(config.PostgresConfig{DatabaseURL: "postgres://a@b/c", User: "x", Database: "y"})
		require.NoError(t, err)
		assert.Equal(t, "postgres://a@b/c", got)
	})

	t.Run("from parts", func(t *testing.T) {
		got, err := buildPostgresURL(config.PostgresConfig{User: "bug", Password: "p@ss", Database: "bugsys", Host: "db", Port: "6543"})
		require.NoError(t, err)
		assert.Equal(t, "postgres://bug:p%40ss@db:6543/bugsys?sslmode=disable", got)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := buildPostgresURL(config.PostgresConfig{Database: "bugsys"})
		assert.Error(t, err)
	})
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
}
