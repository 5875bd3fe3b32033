package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type diagnosisModel struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ImageURL       string    `gorm:"column:image_url"`
	MockDiagnosis  string    `gorm:"column:mock_diagnosis"`
	MockConfidence float64   `gorm:"column:mock_confidence"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (diagnosisModel) TableName() string { return Collection }

// ConnectPostgres opens a GORM connection pool and pings it.
func ConnectPostgres(ctx context.Context, databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Ctx(ctx).Info().Msg("postgres connected")
	return db, nil
}

// RunMigrations applies the embedded SQL migrations in lexical order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.Ctx(ctx).Info().Str("migration", name).Msg("migration applied")
	}
	return nil
}

type PostgresStore struct {
	db  *gorm.DB
	reg *metrics.Registry
}

func NewPostgresStore(db *gorm.DB, reg *metrics.Registry) *PostgresStore {
	return &PostgresStore{db: db, reg: reg}
}

// OpenPostgresStore applies migrations and wraps db. The pool is closed when
// migrations fail.
func OpenPostgresStore(ctx context.Context, db *gorm.DB, reg *metrics.Registry) (*PostgresStore, error) {
	s := NewPostgresStore(db, reg)
	if err := RunMigrations(ctx, db); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			log.Ctx(ctx).Warn().Err(closeErr).Msg("close postgres after failed migration")
		}
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Add(ctx context.Context, rec Record) (string, error) {
	row := diagnosisModel{
		ID:             uuid.New(),
		ImageURL:       rec.ImageURL,
		MockDiagnosis:  rec.MockDiagnosis,
		MockConfidence: rec.MockConfidence,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert diagnosis: %w", err)
	}

	id := row.ID.String()
	log.Ctx(ctx).Info().Str("diagnosis_id", id).Msg("diagnosis stored in postgres")
	s.reg.Inc(ctx, "diagnoses_stored_total", map[string]string{"driver": "postgres"}, 1)
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, ErrNotFound
	}

	var row diagnosisModel
	if err := s.db.WithContext(ctx).Where("id = ?", parsed).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get diagnosis: %w", err)
	}
	return Record{
		ID:             row.ID.String(),
		ImageURL:       row.ImageURL,
		MockDiagnosis:  row.MockDiagnosis,
		MockConfidence: row.MockConfidence,
		Timestamp:      row.CreatedAt.UTC(),
	}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
