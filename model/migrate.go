package model

import "gorm.io/gorm"

func InstallDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Chat{},
		&Message{},
		&Generation{},
	)
}
