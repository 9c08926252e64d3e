package database

import (
	"context"
	"errors"

	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

// SeedAdmin makes sure the configured console administrator can sign in.
func SeedAdmin(ctx context.Context, auth *services.AuthService, email, password string) error {
	if email == "" || password == "" {
		utils.InfoLogger.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	_, err := auth.CreateIdentity(ctx, email, password, models.RoleAdmin)
	if errors.Is(err, services.ErrAccountExists) {
		return nil
	}
	if err != nil {
		return err
	}

	utils.InfoLogger.Printf("Seeded admin account %s", email)
	return nil
}
