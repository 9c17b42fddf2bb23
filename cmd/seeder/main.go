//cmd/seeder/main.go
package main

import (
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/unclebandit/realestate-campaigns/internal/config"
	"github.com/unclebandit/realestate-campaigns/internal/db"
	"github.com/unclebandit/realestate-campaigns/internal/tools"
)

func main() {
	cliApp := &cli.App{
		Name:  "seeder",
		Usage: "create the schema and load demo data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dsn", Usage: "postgres connection string, defaults to the DB_* environment"},
			&cli.StringFlag{Name: "dir", Value: "seed", Usage: "directory holding *.sql seed files"},
			&cli.BoolFlag{Name: "schema-only", Usage: "only create missing tables"},
		},
		Action: seed,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seed(c *cli.Context) error {
	cfg, _, err := config.Load()
	if err != nil {
		return err
	}
	l := tools.NewLogger(cfg.LogLevel, cfg.LogFormat)

	dsn := c.String("dsn")
	if dsn == "" {
		dsn = cfg.DSN()
	}
	conn, err := db.Open(c.Context, dsn, l)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.EnsureSchema(c.Context, conn); err != nil {
		return err
	}
	if c.Bool("schema-only") {
		l.Info("Schema ready")
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.String("dir"), "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := conn.ExecContext(c.Context, string(content)); err != nil {
			l.WithError(err).WithField("file", file).Error("failed to execute seed file")
			return err
		}
		l.WithField("file", file).Info("🌱 Seeded")
	}

	l.Info("Database seeding completed successfully!")
	return nil
}
