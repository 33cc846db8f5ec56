package database

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/bank-report-review/internal/utils"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "123456"

var seedUsers = []struct{ username, role string }{
	{"analyst1", "analyst"},
	{"analyst2", "analyst"},
	{"analyst3", "analyst"},
	{"analyst4", "analyst"},
	{"analyst5", "analyst"},
	{"analyst6", "analyst"},
	{"analyst7", "analyst"},
	{"analyst8", "analyst"},
	{"analyst9", "analyst"},
	{"analyst0", "analyst"},
	{"supervisor", "supervisor"},
	{"admin", "admin"},
	{"reviewer", "reviewer"},
}

var seedBanks = []struct{ aba, name string }{
	{"021000021", "JPMorgan Chase Bank"},
	{"026009593", "Bank of America"},
	{"121000248", "Wells Fargo Bank"},
	{"111000025", "Citibank"},
	{"036001808", "Fifth Third Bank"},
	{"044000024", "PNC Bank"},
	{"053000196", "U.S. Bank"},
	{"122000247", "Union Bank"},
	{"071000013", "Regions Bank"},
	{"063100277", "SunTrust Bank"},
	{"091000019", "Ally Bank"},
	{"124003116", "Capital One Bank"},
	{"031176110", "HSBC Bank USA"},
	{"021001088", "Santander Bank"},
	{"122105155", "Silicon Valley Bank"},
	{"031100209", "TD Bank"},
	{"021200025", "M&T Bank"},
	{"043000096", "KeyBank"},
	{"071923909", "Comerica Bank"},
	{"122016066", "First Republic Bank"},
}

var (
	seedErrorTypes = []string{"Data Format", "Missing Field", "Invalid Value", "Calculation Error", "Regulatory Compliance"}
	seedFields     = []string{"total_assets", "loan_amount", "deposit_balance", "interest_rate", "customer_count"}
	seedDetails    = []string{"Value exceeds limit", "Required field missing", "Invalid format", "Calculation mismatch"}
	seedComments   = []string{
		"This error needs immediate attention",
		"Bank has been notified to resubmit",
		"Similar error pattern observed in previous reports",
		"Escalating to supervisor for review",
		"Error resolved after bank clarification",
	}
)

const maxSeedComments = 25

// SeedOptions controls demo data generation.
type SeedOptions struct {
	Reports    int        // number of random reports
	BcryptCost int        // cost used to hash DemoPassword
	Rand       *rand.Rand // nil uses a time-seeded source
	Now        time.Time  // comment timestamps are placed before Now; zero uses time.Now
}

// SeedResult counts the rows written by Seed.
type SeedResult struct {
	Users            int
	Banks            int
	Reports          int
	ValidationErrors int
	Comments         int
}

// Seed wipes every table, sessions included, and writes the demo data set in
// a single transaction.
func Seed(ctx context.Context, db *sqlx.DB, opts SeedOptions) (SeedResult, error) {
	var res SeedResult
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	hash, err := utils.HashPassword(DemoPassword, opts.BcryptCost)
	if err != nil {
		return res, fmt.Errorf("hash demo password: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback() // no-op after commit

	for _, table := range []string{"error_comments", "validation_errors", "reports", "banks", "users", "sessions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return res, fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := resetSequences(ctx, tx, db.DriverName()); err != nil {
		return res, err
	}

	var userIDs []int64
	for _, u := range seedUsers {
		id, err := insertID(ctx, tx, "INSERT INTO users (username, password, role) VALUES (?, ?, ?)", u.username, hash, u.role)
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.username, err)
		}
		userIDs = append(userIDs, id)
	}
	res.Users = len(userIDs)

	var bankIDs []int64
	for _, b := range seedBanks {
		id, err := insertID(ctx, tx, "INSERT INTO banks (aba_code, name) VALUES (?, ?)", b.aba, b.name)
		if err != nil {
			return res, fmt.Errorf("seed bank %s: %w", b.aba, err)
		}
		bankIDs = append(bankIDs, id)
	}
	res.Banks = len(bankIDs)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	days := int(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC).Sub(start).Hours() / 24)
	var errorIDs []int64
	for i := 0; i < opts.Reports; i++ {
		bankID := bankIDs[rng.Intn(len(bankIDs))]
		code := fmt.Sprintf("RPT-2025-%d", 1000+rng.Intn(9000))
		date := start.AddDate(0, 0, rng.Intn(days+1)).Format("2006-01-02")
		hasErrors := rng.Intn(2) == 0
		// reports with errors always await a decision
		var accepted any
		if !hasErrors {
			switch rng.Intn(3) {
			case 0:
				accepted = true
			case 1:
				accepted = false
			}
		}
		reportID, err := insertID(ctx, tx,
			"INSERT INTO reports (bank_id, report_code, submission_date, has_errors, is_accepted) VALUES (?, ?, ?, ?, ?)",
			bankID, code, date, hasErrors, accepted)
		if err != nil {
			return res, fmt.Errorf("seed report: %w", err)
		}
		res.Reports++
		if !hasErrors {
			continue
		}
		for n := 1 + rng.Intn(4); n > 0; n-- {
			kind := seedErrorTypes[rng.Intn(len(seedErrorTypes))]
			field := seedFields[rng.Intn(len(seedFields))]
			msg := fmt.Sprintf("%s error in %s: %s", kind, field, seedDetails[rng.Intn(len(seedDetails))])
			errID, err := insertID(ctx, tx,
				"INSERT INTO validation_errors (report_id, error_type, error_message, field_name) VALUES (?, ?, ?, ?)",
				reportID, kind, msg, field)
			if err != nil {
				return res, fmt.Errorf("seed validation error: %w", err)
			}
			errorIDs = append(errorIDs, errID)
		}
	}
	res.ValidationErrors = len(errorIDs)

	// comments go to a random sample of errors, authored by the first five users
	rng.Shuffle(len(errorIDs), func(i, j int) { errorIDs[i], errorIDs[j] = errorIDs[j], errorIDs[i] })
	sample := errorIDs
	if len(sample) > maxSeedComments {
		sample = sample[:maxSeedComments]
	}
	for _, errID := range sample {
		author := userIDs[rng.Intn(5)]
		at := now.UTC().Add(-time.Duration(1+rng.Intn(30*24*60)) * time.Minute).Format(TimestampLayout)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO error_comments (error_id, user_id, comment, created_at) VALUES (?, ?, ?, ?)",
			errID, author, seedComments[rng.Intn(len(seedComments))], at); err != nil {
			return res, fmt.Errorf("seed comment: %w", err)
		}
		res.Comments++
	}

	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// TimestampLayout is the text format of error_comments.created_at.
const TimestampLayout = "2006-01-02 15:04:05"

func insertID(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (int64, error) {
	r, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return r.LastInsertId()
}

// resetSequences restarts id numbering so a reseeded database has the same
// ids as a fresh one.
func resetSequences(ctx context.Context, tx *sqlx.Tx, driver string) error {
	tables := []string{"users", "banks", "reports", "validation_errors", "error_comments"}
	switch driver {
	case DriverSQLite:
		_, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence")
		return err
	case DriverMySQL:
		// ALTER TABLE commits the deletes above implicitly
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "ALTER TABLE "+t+" AUTO_INCREMENT = 1"); err != nil {
				return err
			}
		}
	}
	return nil
}
