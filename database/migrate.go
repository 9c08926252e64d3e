package database

import (
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

// Models lists every table owned by the console, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Restaurant{},
		&models.Feedback{},
		&models.DemoRequest{},
		&models.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}

	// Rows created before rating_sum existed keep a NULL sum; backfill from the rounded mean.
	if err := db.Model(&models.Restaurant{}).
		Where("rating_sum IS NULL").
		Update("rating_sum", gorm.Expr("overall_rating * review_count")).Error; err != nil {
		utils.ErrorLogger.Printf("Error backfilling rating_sum: %v", err)
	}

	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
