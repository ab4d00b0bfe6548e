package database

import (
	"fmt"
	"log"

	"github.com/school-system/results-engine/internal/config"
	"github.com/school-system/results-engine/internal/models"
	"github.com/school-system/results-engine/internal/store"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Env == "development" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Silent
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("driver %q has no SQL connection", cfg.Database.Driver)
	}

	log.Printf("Attempting %s connection with DSN: %s", cfg.Database.Driver, maskPassword(cfg.Database.DSN))

	// TranslateError turns duplicate natural keys into gorm.ErrDuplicatedKey.
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	log.Println("Database connection successful")
	return db, nil
}

func maskPassword(dsn string) string {
	if len(dsn) > 20 {
		return dsn[:20] + "...***..."
	}
	return "***"
}

func Migrate(db *gorm.DB) error {
	log.Println("Running migrations...")

	err := db.AutoMigrate(
		&models.Subject{},
		&models.SubjectCombination{},
		&models.Class{},
		&models.ClassSubject{},
		&models.Student{},
		&models.Exam{},
		&models.HistoryEntry{},
		&models.GradingPolicy{},
	)
	if err != nil {
		return err
	}
	for model, table := range store.ResultTables() {
		if err := db.Table(table).AutoMigrate(&models.Result{}); err != nil {
			return fmt.Errorf("migrate %s: %w", model, err)
		}
	}

	indexes := []index{
		{table: "subjects", name: "idx_subjects_curriculum_code", columns: "curriculum, code"},
		{table: "marks_history", name: "idx_marks_history_student_exam", columns: "student_id, exam_id"},
		{table: "marks_history", name: "idx_marks_history_version", columns: "result_model, result_id, result_version"},
	}
	for _, table := range store.ResultTables() {
		indexes = append(indexes,
			index{table: table, name: "uq_" + table + "_natural_key", columns: "student_id, subject_id, exam_id", unique: true},
			index{table: table, name: "idx_" + table + "_exam", columns: "exam_id, student_id"},
			index{table: table, name: "idx_" + table + "_student", columns: "student_id"},
		)
	}
	for _, ix := range indexes {
		if err := ix.ensure(db); err != nil {
			return err
		}
	}

	log.Println("Migrations complete")
	return nil
}

type index struct {
	table   string
	name    string
	columns string
	unique  bool
}

// ensure creates the index unless it exists. MySQL has no CREATE INDEX IF
// NOT EXISTS, so existence is checked through the migrator.
func (ix index) ensure(db *gorm.DB) error {
	if db.Migrator().HasIndex(ix.table, ix.name) {
		return nil
	}
	kind := "INDEX"
	if ix.unique {
		kind = "UNIQUE INDEX"
	}
	stmt := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, ix.name, ix.table, ix.columns)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create index %s: %w", ix.name, err)
	}
	return nil
}
