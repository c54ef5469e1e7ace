package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"toolhub/config"
	"toolhub/models"
)

const (
	pingTimeout  = 5 * time.Second
	connMaxIdle  = 2 * time.Minute
	connMaxLife  = 30 * time.Minute
	maxIdleConns = 5
	maxOpenConns = 25
)

// Connect opens Postgres through gorm, applies pool limits and pings once.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxIdleTime(connMaxIdle)
	sqlDB.SetConnMaxLifetime(connMaxLife)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return gdb, nil
}

// Migrate creates or updates every table, then adds what AutoMigrate can't
// express: the one-held-loan-per-item partial indexes and the checks on loans.
// It returns how many legacy overdue rows were reset to active.
func Migrate(db *gorm.DB) (normalized int64, err error) {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Invite{},
		&models.Tool{},
		&models.HardwareSample{},
		&models.Loan{},
		&models.LoanTransition{},
		&models.MaintenanceRecord{},
		&models.ImpactMetrics{},
	); err != nil {
		return 0, err
	}

	// Stored overdue rows predate derived overdue; they count as out on loan.
	if normalized, err = normalizeOverdue(db); err != nil {
		return 0, err
	}

	for _, stmt := range loanConstraints() {
		if err := db.Exec(stmt).Error; err != nil {
			return normalized, err
		}
	}
	return normalized, nil
}

func normalizeOverdue(db *gorm.DB) (int64, error) {
	res := db.Model(&models.Loan{}).
		Where("status = ?", models.LoanOverdue).
		Update("status", models.LoanActive)
	return res.RowsAffected, res.Error
}

// loanConstraints are the indexes and checks on loans that AutoMigrate can't
// express. Each statement is idempotent.
func loanConstraints() []string {
	statuses := make([]string, len(models.LoanStatuses))
	for i, st := range models.LoanStatuses {
		statuses[i] = "'" + string(st) + "'"
	}
	return []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_one_held_per_tool
		  ON %[1]s (tool_id)
		  WHERE tool_id IS NOT NULL AND status IN ('approved', 'active', 'overdue');`, models.LoanTable),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_one_held_per_hardware_sample
		  ON %[1]s (hardware_sample_id)
		  WHERE hardware_sample_id IS NOT NULL AND status IN ('approved', 'active', 'overdue');`, models.LoanTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_user_requested_desc
		  ON %[1]s (user_id, requested_at DESC);`, models.LoanTable),
		addCheck(models.LoanTable, "exactly_one_item", "(tool_id IS NULL) <> (hardware_sample_id IS NULL)"),
		addCheck(models.LoanTable, "known_status", "status IN ("+strings.Join(statuses, ", ")+")"),
	}
}

func addCheck(table, name, expr string) string {
	return fmt.Sprintf(`DO $$
		BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[1]s_%[2]s') THEN
		    ALTER TABLE %[1]s ADD CONSTRAINT %[1]s_%[2]s CHECK (%[3]s);
		  END IF;
		END $$;`, table, name, expr)
}
