// Command mcp serves the review tools over MCP on stdin/stdout, acting as
// one database user.  Logs go to stderr; stdout carries only JSON-RPC.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/database"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
	"github.com/iliyamo/bank-report-review/internal/service"
	"github.com/iliyamo/bank-report-review/internal/tools"
)

var version = "dev"

func main() {
	cfg := config.Load()

	flags := pflag.NewFlagSet("mcp", pflag.ExitOnError)
	username := flags.String("user", "analyst1", "user the tools act as")
	flags.StringVar(&cfg.DB.Path, "db", cfg.DB.Path, "sqlite database file")
	noSQL := flags.Bool("no-sql", false, "hide the schema and SQL query tools")
	_ = flags.Parse(os.Args[1:])

	log := config.NewLogger(cfg)
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	u, err := repository.NewUserRepo(db).GetByUsername(ctx, *username)
	if err != nil {
		log.WithError(err).WithField("user", *username).Fatal("unknown user")
	}
	id := model.Identity{UserID: u.ID, Username: u.Username, Role: u.Role}

	review := service.NewReviewService(repository.NewBankRepo(db), repository.NewReportRepo(db), repository.NewErrorRepo(db), nil, log)
	var sql tools.SQL
	if !*noSQL {
		sql = repository.NewSchemaRepo(db)
	}
	reg := tools.NewRegistry(review, sql, log, nil)
	log.WithFields(logrus.Fields{"user": id.Username, "tools": reg.Names()}).Info("mcp: serving on stdio")

	if err := tools.NewServer(reg, "bank-report-review", version).Run(ctx, os.Stdin, os.Stdout, id); err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("mcp: stopped")
	}
}
