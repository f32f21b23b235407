package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/marketplace-backend/internal/bootstrap"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up               apply every pending migration
  down             roll back the latest migration
  status           list migrations and whether they are applied
  to <version>     move the schema to version (YYYYMMDDHHMMSS)
  create <name>    write a new empty migration into -dir
  validate         check migration names and annotations

flags:
`

func main() {
	dir := flag.String("dir", migrate.SourceDir, "migrations directory used by create, validate and -from-dir")
	fromDir := flag.Bool("from-dir", false, "read migrations from -dir instead of the binary")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command := args[0]

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"command": command, "dir": *dir})

	switch command {
	case "create":
		if len(args) < 2 {
			fail(ctx, logg, "create needs a name", nil)
		}
		path, err := migrate.Create(*dir, args[1], time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		if err := migrate.Validate(migrate.DirFS(*dir)); err != nil {
			fail(ctx, logg, "validate migrations", err)
		}
		logg.Info(ctx, "migrations valid")
		return
	}

	proc, err := bootstrap.Start("migrate")
	if err != nil {
		fail(ctx, logg, "load config", err)
	}
	logg = proc.Logger
	ctx = logg.WithFields(context.Background(), map[string]any{
		"command": command,
		"dir":     *dir,
		"env":     proc.Config.App.Env,
	})

	// Opened directly: the dev auto-migrate hook must not run ahead of down
	// or to.
	dbClient, err := db.New(ctx, proc.Config.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	proc.Track("database", dbClient)
	defer proc.Shutdown(ctx)

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "sql handle", err)
	}

	var source fs.FS = migrate.EmbeddedFS()
	if *fromDir {
		source = migrate.DirFS(*dir)
	}
	migrator, err := migrate.New(sqlDB, source)
	if err != nil {
		fail(ctx, logg, "load migrations", err)
	}

	var steps []migrate.Step
	switch command {
	case "up":
		steps, err = migrator.Up(ctx)
	case "down":
		steps, err = migrator.Down(ctx)
	case "to":
		if len(args) < 2 {
			fail(ctx, logg, "to needs a version", nil)
		}
		steps, err = migrator.To(ctx, args[1])
	case "status":
		err = printStatus(ctx, migrator)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if command != "status" {
		migrate.LogSteps(ctx, logg, steps)
	}
	if err != nil {
		fail(ctx, logg, command+" failed", err)
	}
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	rows, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.File)
	}
	return w.Flush()
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
