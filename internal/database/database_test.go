package database

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bank-report-review/internal/config"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DBConfig{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DBConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"))
	assert.Equal(t, []string{"banks", "error_comments", "reports", "sessions", "users", "validation_errors"}, tables)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, config.DBConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))

	opts := SeedOptions{Reports: 30, BcryptCost: bcrypt.MinCost, Rand: rand.New(rand.NewSource(42)), Now: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	res, err := Seed(ctx, db, opts)
	require.NoError(t, err)
	assert.Equal(t, 13, res.Users)
	assert.Equal(t, 20, res.Banks)
	assert.Equal(t, 30, res.Reports)
	assert.LessOrEqual(t, res.Comments, maxSeedComments)

	t.Run("passwords are hashed", func(t *testing.T) {
		var hash string
		require.NoError(t, db.GetContext(ctx, &hash, "SELECT password FROM users WHERE username = 'analyst1'"))
		assert.NotEqual(t, DemoPassword, hash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(DemoPassword)))
	})

	t.Run("reports with errors await a decision", func(t *testing.T) {
		var n int
		require.NoError(t, db.GetContext(ctx, &n, "SELECT COUNT(*) FROM reports WHERE has_errors = 1 AND is_accepted IS NOT NULL"))
		assert.Zero(t, n)
	})

	t.Run("every erroneous report has one to four errors", func(t *testing.T) {
		var counts []int
		require.NoError(t, db.SelectContext(ctx, &counts,
			"SELECT COUNT(e.id) FROM reports r LEFT JOIN validation_errors e ON e.report_id = r.id WHERE r.has_errors = 1 GROUP BY r.id"))
		for _, c := range counts {
			assert.GreaterOrEqual(t, c, 1)
			assert.LessOrEqual(t, c, 4)
		}
		var total int
		require.NoError(t, db.GetContext(ctx, &total, "SELECT COUNT(*) FROM validation_errors"))
		assert.Equal(t, res.ValidationErrors, total)
	})

	t.Run("dates fall in the first half of 2025", func(t *testing.T) {
		var minDate, maxDate string
		require.NoError(t, db.QueryRowContext(ctx, "SELECT MIN(submission_date), MAX(submission_date) FROM reports").Scan(&minDate, &maxDate))
		assert.GreaterOrEqual(t, minDate, "2025-01-01")
		assert.LessOrEqual(t, maxDate, "2025-06-30")
	})

	t.Run("reseed restarts ids and clears sessions", func(t *testing.T) {
		_, err := db.ExecContext(ctx, "INSERT INTO sessions (token, user_id, username, role, created_at) VALUES ('abc', 1, 'analyst1', 'analyst', 0)")
		require.NoError(t, err)

		opts.Rand = rand.New(rand.NewSource(7))
		_, err = Seed(ctx, db, opts)
		require.NoError(t, err)

		var minID int64
		require.NoError(t, db.GetContext(ctx, &minID, "SELECT MIN(id) FROM banks"))
		assert.Equal(t, int64(1), minID)
		var sessions int
		require.NoError(t, db.GetContext(ctx, &sessions, "SELECT COUNT(*) FROM sessions"))
		assert.Zero(t, sessions)
	})
}

func TestSeedIsDeterministicForASeed(t *testing.T) {
	ctx := context.Background()
	codes := func() []string {
		db, err := Open(ctx, config.DBConfig{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "d.db")})
		require.NoError(t, err)
		defer db.Close()
		require.NoError(t, Migrate(ctx, db))
		_, err = Seed(ctx, db, SeedOptions{Reports: 10, BcryptCost: bcrypt.MinCost, Rand: rand.New(rand.NewSource(1))})
		require.NoError(t, err)
		var out []string
		require.NoError(t, db.SelectContext(ctx, &out, "SELECT report_code FROM reports ORDER BY id"))
		return out
	}
	assert.Equal(t, codes(), codes())
}
