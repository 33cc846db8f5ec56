// Command seed wipes the review database and writes the demo data set.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/database"
)

func main() {
	cfg := config.Load()

	flags := pflag.NewFlagSet("seed", pflag.ExitOnError)
	flags.StringVar(&cfg.DB.Driver, "driver", cfg.DB.Driver, "database driver (sqlite or mysql)")
	flags.StringVar(&cfg.DB.Path, "db", cfg.DB.Path, "sqlite database file")
	reports := flags.Int("reports", cfg.SeedReports, "number of random reports to generate")
	seed := flags.Int64("seed", 0, "random seed; 0 picks one from the clock")
	cost := flags.Int("bcrypt-cost", cfg.BcryptCost, "bcrypt cost for the demo password")
	_ = flags.Parse(os.Args[1:])

	log := config.NewLogger(cfg)
	if err := run(context.Background(), cfg, *reports, *seed, *cost, log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
}

func run(ctx context.Context, cfg config.Config, reports int, seed int64, cost int, log *logrus.Logger) error {
	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	opts := database.SeedOptions{Reports: reports, BcryptCost: cost}
	if seed != 0 {
		opts.Rand = rand.New(rand.NewSource(seed))
	}
	res, err := database.Seed(ctx, db, opts)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"users":    res.Users,
		"banks":    res.Banks,
		"reports":  res.Reports,
		"errors":   res.ValidationErrors,
		"comments": res.Comments,
	}).Info("database seeded")
	fmt.Fprintf(os.Stderr, "demo users share the password %q\n", database.DemoPassword)
	return nil
}
