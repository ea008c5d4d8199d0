package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grodonkey/crowdcoach-backend/internal/logger"
	"github.com/grodonkey/crowdcoach-backend/internal/types"
	"github.com/grodonkey/crowdcoach-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "crowdcoach", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Project{},
		&types.AIThread{},
		&types.AIMessage{},
		&types.AIDraft{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	// The thread aggregate owns its messages and draft: dropping the thread
	// is the only deletion path for either.
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_ai_message_thread_id",
			sql: `ALTER TABLE "ai_message"
				ADD CONSTRAINT "fk_ai_message_thread_id"
				FOREIGN KEY ("thread_id") REFERENCES "ai_thread"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_ai_draft_thread_id",
			sql: `ALTER TABLE "ai_draft"
				ADD CONSTRAINT "fk_ai_draft_thread_id"
				FOREIGN KEY ("thread_id") REFERENCES "ai_thread"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_project_owner_id",
			sql: `ALTER TABLE "project"
				ADD CONSTRAINT "fk_project_owner_id"
				FOREIGN KEY ("owner_id") REFERENCES "user"("id")`,
		},
	}
	for _, c := range constraints {
		var count int64
		if err := s.db.Raw(
			`SELECT COUNT(*) FROM pg_constraint WHERE conname = ?`, c.name,
		).Scan(&count).Error; err != nil {
			return fmt.Errorf("failed to check constraint %s: %w", c.name, err)
		}
		if count > 0 {
			continue
		}
		if err := s.db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
