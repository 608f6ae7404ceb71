// Package sql keeps the violation ledger in a relational database through gorm.
// It is selected with LEDGER_BACKEND=postgres; sessions and users stay in MongoDB.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"peerprep/interview/internal/models"
)

type violationRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	SessionID     string    `gorm:"size:64;not null;index:idx_violation_session_time,priority:1;uniqueIndex:idx_violation_event,priority:1"`
	UserID        string    `gorm:"size:64;not null"`
	ViolationType string    `gorm:"size:32;not null"`
	ActionTaken   string    `gorm:"size:32;not null"`
	ScreenshotURL string    `gorm:"size:512"`
	EventID       *string   `gorm:"size:128;uniqueIndex:idx_violation_event,priority:2"`
	Source        string    `gorm:"size:32;not null"`
	Timestamp     time.Time `gorm:"not null;index:idx_violation_session_time,priority:2,sort:desc"`
}

func (violationRow) TableName() string { return "proctoring_violations" }

func toRow(v *models.Violation) violationRow {
	row := violationRow{
		ID:            v.ID,
		SessionID:     v.SessionID,
		UserID:        v.UserID,
		ViolationType: string(v.ViolationType),
		ActionTaken:   string(v.ActionTaken),
		ScreenshotURL: v.ScreenshotURL,
		Source:        string(v.Source),
		Timestamp:     v.Timestamp,
	}
	if v.EventID != "" {
		id := v.EventID
		row.EventID = &id
	}
	return row
}

func (r violationRow) toModel() models.Violation {
	v := models.Violation{
		ID:            r.ID,
		SessionID:     r.SessionID,
		UserID:        r.UserID,
		ViolationType: models.ViolationType(r.ViolationType),
		ActionTaken:   models.ActionTaken(r.ActionTaken),
		ScreenshotURL: r.ScreenshotURL,
		Source:        models.ViolationSource(r.Source),
		Timestamp:     r.Timestamp,
	}
	if r.EventID != nil {
		v.EventID = *r.EventID
	}
	return v
}

var gormOpen = func(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// DSN builds a postgres connection string from its parts.
func DSN(host, port, user, password, dbName, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, dbName, sslMode)
}

// Open connects to postgres and migrates the ledger table.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gormOpen(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&violationRow{})
}

type ViolationLedger struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewViolationLedger(db *gorm.DB) *ViolationLedger {
	return &ViolationLedger{DB: db, now: time.Now}
}

func (l *ViolationLedger) Append(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	row := toRow(v)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = l.now().UTC()
	}

	res := l.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		if row.EventID == nil {
			return nil, false, errors.New("violation insert was ignored")
		}
		var existing violationRow
		err := l.DB.WithContext(ctx).
			Where("session_id = ? AND event_id = ?", row.SessionID, *row.EventID).
			First(&existing).Error
		if err != nil {
			return nil, false, err
		}
		out := existing.toModel()
		return &out, false, nil
	}
	out := row.toModel()
	return &out, true, nil
}

func (l *ViolationLedger) CountByType(ctx context.Context, sessionID string, types ...models.ViolationType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	var n int64
	err := l.DB.WithContext(ctx).Model(&violationRow{}).
		Where("session_id = ? AND violation_type IN ?", sessionID, names).
		Count(&n).Error
	return int(n), err
}

func (l *ViolationLedger) ListBySession(ctx context.Context, sessionID string) ([]models.Violation, error) {
	var rows []violationRow
	err := l.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Violation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
