// Command createadmin creates an admin account, or elevates an existing
// account to admin, directly against the database.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"storefront/config"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

func main() {
	var (
		name     string
		email    string
		password string
	)
	flag.StringVar(&name, "name", "Administrator", "display name for a new admin")
	flag.StringVar(&email, "email", "", "email of the account to create or elevate")
	flag.StringVar(&password, "password", os.Getenv("ADMIN_INIT_PASSWORD"), "password for a new admin")
	flag.Parse()

	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env, "storefront-createadmin"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	if email == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	user, created, err := service.NewUserService(db).EnsureAdmin(ctx, name, email, password)
	if err != nil {
		logger.Fatal("Failed to ensure admin", zap.String("email", email), zap.Error(err))
	}

	if created {
		logger.Info("Admin account created", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	} else {
		logger.Info("Account has admin role", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	}
}
