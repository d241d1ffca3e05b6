package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/guregu/null/v6"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/util"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

type MigrateOptions struct {
	DatabaseName string
	Action       string
	Name         string
	Version      int64
}

func StartMigrate(cfg *config.EnvConfig, opts MigrateOptions) {
	if opts.DatabaseName == "" {
		opts.DatabaseName = botDatabaseName
	}

	migrationDir := "migration/postgresql/" + opts.DatabaseName

	dbCfg, ok := cfg.Database[opts.DatabaseName]
	if !ok || dbCfg.DSN == "" {
		util.ContinueOrFatal(fmt.Errorf("database %s is not configured", opts.DatabaseName))
	}

	db, err := sql.Open("postgres", dbCfg.DSN)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = goose.SetDialect("postgres")
	util.ContinueOrFatal(err)

	switch opts.Action {
	case "create":
		err = goose.Create(db, migrationDir, opts.Name, "sql")
	case "up":
		err = goose.Up(db, migrationDir, goose.WithAllowMissing())
	case "up-by-one":
		err = goose.UpByOne(db, migrationDir, goose.WithAllowMissing())
	case "up-to":
		err = goose.UpTo(db, migrationDir, null.IntFrom(opts.Version).Int64, goose.WithAllowMissing())
	case "down":
		err = goose.Down(db, migrationDir, goose.WithAllowMissing())
	case "down-to":
		err = goose.DownTo(db, migrationDir, null.IntFrom(opts.Version).Int64, goose.WithAllowMissing())
	case "status":
		err = goose.Status(db, migrationDir)
	case "reset":
		err = goose.Reset(db, migrationDir, goose.WithAllowMissing())
		if err != nil {
			break
		}
		err = goose.Up(db, migrationDir, goose.WithAllowMissing())
	default:
		err = errors.New("invalid command")
	}

	util.ContinueOrFatal(err)
}
