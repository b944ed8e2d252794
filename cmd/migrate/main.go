// Command migrate manages the CRM schema and seeds the permission catalog.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/migrate"
	"tt360.co/crm/internal/obs"
	"tt360.co/crm/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn           = flag.String("dsn", os.Getenv("CRM_PG_DSN"), "PostgreSQL DSN")
		adminEmail    = flag.String("admin-email", os.Getenv("CRM_ADMIN_EMAIL"), "email of the admin user created by seed")
		adminPassword = flag.String("admin-password", os.Getenv("CRM_ADMIN_PASSWORD"), "password of the admin user created by seed")
		timeout       = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CRM_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	logger, err := obs.NewLogger("crm-migrate", "cli", "info", "console")
	if err != nil {
		log.Fatal(err)
	}
	obs.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr, err := migrate.NewManager(db)
	if err != nil {
		log.Fatal(err)
	}

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = seed(ctx, db, *adminEmail, *adminPassword)
	case "status":
		var history []migrate.Status
		history, err = mgr.Status(ctx)
		for _, s := range history {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%05d  %-28s %s\n", s.Version, s.Path, applied)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// seed installs the builtin permissions and the ADMIN role; with an email it also
// creates the first administrator.
func seed(ctx context.Context, db *sql.DB, email, password string) error {
	if email != "" && password == "" {
		return errors.New("-admin-password is required with -admin-email")
	}
	rbac, err := auth.NewRBACService(pg.New(db))
	if err != nil {
		return err
	}
	return rbac.Bootstrap(ctx, email, password)
}
