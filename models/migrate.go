package models

import (
	"bitbucket.org/mmdatafocus/stockflow_backend/config"
)

func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		return
	}
	logger := config.GetLogger()
	if err := db.AutoMigrate(&ExportLog{}); err != nil {
		config.LogError(logger, "models", "MigrateTable", "AutoMigrate", nil, err)
	}
}
