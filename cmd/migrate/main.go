package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/flowmail/dashboard/internal/config"
	"github.com/flowmail/dashboard/internal/migrations"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	cmd := "up"
	args := flag.Args()
	if len(args) > 0 {
		cmd = args[0]
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	switch cmd {
	case "up":
		if err := migrations.Up(db); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil || steps < 1 {
				log.Fatalf("down: invalid step count %q", args[1])
			}
		}
		if err := migrations.Down(db, steps); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
	case "version":
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [-config path] [up | down [n] | version]\n")
		os.Exit(2)
	}

	version, dirty, err := migrations.Version(db)
	if err != nil {
		log.Fatalf("version: %v", err)
	}
	log.Printf("Schema version %d (dirty=%v)", version, dirty)
}
