package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/tkclough/salescrawler/migrations"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	dbPath := flag.String("db", "", "path to sqlite database (overrides config)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-config path] [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", resolveDBPath(*dbPath, *configPath))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// resolveDBPath picks the database path: the -db flag, then the
// DATABASE_PATH environment variable, then the service config file,
// then the stock default. The config read is lenient so the tool works
// without a complete (or any) config file.
func resolveDBPath(flagValue, configPath string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		return v
	}
	if v := dbPathFromConfig(configPath); v != "" {
		return v
	}
	return "./data/salescrawler.db"
}

func dbPathFromConfig(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var cfg struct {
		DB struct {
			Path string `toml:"path"`
		} `toml:"db"`
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ""
	}
	return cfg.DB.Path
}
