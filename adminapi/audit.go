// Package adminapi implements the Admin HTTP API of SPEC_FULL.md §6: a
// JWT-bearer-gated surface for configuration read/write, prompt/manifest
// content management, reasoning-pattern and provider-model introspection,
// a credential-pool observability endpoint, and a restart trigger.
package adminapi

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConfigChangeAudit is one row recording a successful POST /admin/config
// reload, grounded on the teacher's gorm-CRUD texture in
// api/handlers/apikey.go, repurposed from API-key bookkeeping to a
// config-change audit trail per SPEC_FULL.md §6's "Persisted state".
type ConfigChangeAudit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Actor     string    `json:"actor"`
	Summary   string    `json:"summary"`
	ChangedAt time.Time `json:"changed_at"`
}

// AuditLog persists ConfigChangeAudit rows to a local SQLite file via
// gorm, per SPEC_FULL.md §6: "Config-change audit rows in a local SQLite
// file via gorm."
type AuditLog struct {
	db *gorm.DB
}

// OpenAuditLog opens (creating if absent) the SQLite file at path and
// migrates the ConfigChangeAudit schema.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ConfigChangeAudit{}); err != nil {
		return nil, err
	}
	return &AuditLog{db: db}, nil
}

// Record inserts a new audit row.
func (a *AuditLog) Record(actor, summary string) error {
	row := ConfigChangeAudit{Actor: actor, Summary: summary, ChangedAt: time.Now()}
	return a.db.Create(&row).Error
}

// Recent returns the most recent n audit rows, newest first.
func (a *AuditLog) Recent(n int) ([]ConfigChangeAudit, error) {
	var rows []ConfigChangeAudit
	err := a.db.Order("changed_at DESC").Limit(n).Find(&rows).Error
	return rows, err
}
