// Package sql stores profiles in a relational table through gorm. It registers
// the "postgres" and "sqlite" profile store plugins.
package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/model"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registryprofile "github.com/chirino/chat-service/internal/registry/profile"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	for _, kind := range []string{"postgres", "sqlite"} {
		registryprofile.Register(registryprofile.Plugin{
			Name: kind,
			Loader: func(ctx context.Context) (registryprofile.ProfileStore, error) {
				cfg := config.FromContext(ctx)
				db, err := Open(kind, cfg.ResolvedProfileDBURL())
				if err != nil {
					return nil, err
				}
				// Each in-memory sqlite connection is its own database, so it
				// cannot rely on a separate migrate run.
				if kind == "sqlite" {
					if err := AutoMigrate(ctx, db); err != nil {
						return nil, err
					}
				}
				return New(db), nil
			},
		})
	}

	registrymigrate.Register(registrymigrate.Plugin{Order: 110, Migrator: &profileMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Open connects gorm with the dialect for kind.
func Open(kind, url string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch kind {
	case "postgres":
		dialector = postgres.Open(url)
	case "sqlite":
		dialector = sqlite.Open(url)
	default:
		return nil, fmt.Errorf("profile store: unsupported kind %q", kind)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s profile store: %w", kind, err)
	}
	return db, nil
}

// AutoMigrate creates or updates the profiles table.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&profileRow{}); err != nil {
		return fmt.Errorf("profile migration: %w", err)
	}
	return nil
}

type profileMigrator struct{}

func (m *profileMigrator) Name() string { return "profile-schema" }
func (m *profileMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.ProfileStoreType != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(cfg.ProfileStoreType, cfg.ResolvedProfileDBURL())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if err := AutoMigrate(ctx, db); err != nil {
		return err
	}
	log.Info("Profile schema migration complete")
	return nil
}

type profileRow struct {
	Username         string `gorm:"primaryKey"`
	FirstName        string `gorm:"not null"`
	LastName         string `gorm:"not null"`
	ProfilePictureID string
	Version          int64 `gorm:"not null;default:1"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (profileRow) TableName() string { return "profiles" }

func (r profileRow) toModel() *model.UserProfile {
	return &model.UserProfile{
		Username:         r.Username,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		ProfilePictureID: r.ProfilePictureID,
	}
}

// Store implements ProfileStore. Updates are guarded by the version column.
type Store struct {
	db *gorm.DB
}

// New returns a store over db. The profiles table must exist (see AutoMigrate).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func translate(op string, err error) error {
	var connectErr *pgconn.ConnectError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err), errors.As(err, &connectErr):
		return &registrystore.UnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (s *Store) AddProfile(ctx context.Context, profile model.UserProfile) error {
	row := profileRow{
		Username:         profile.Username,
		FirstName:        profile.FirstName,
		LastName:         profile.LastName,
		ProfilePictureID: profile.ProfilePictureID,
		Version:          1,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if isDuplicate(err) {
		return &registrystore.AlreadyExistsError{Resource: "profile", ID: profile.Username}
	}
	return translate("add profile", err)
}

func (s *Store) find(ctx context.Context, username string) (*profileRow, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "profile", ID: username}
	}
	if err != nil {
		return nil, translate("get profile", err)
	}
	return &row, nil
}

func (s *Store) GetProfile(ctx context.Context, username string) (*model.UserProfile, error) {
	row, err := s.find(ctx, username)
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) UpdateProfile(ctx context.Context, profile model.UserProfile) error {
	current, err := s.find(ctx, profile.Username)
	if err != nil {
		return err
	}
	return s.replace(ctx, profile, current.Version)
}

// replace writes profile only if the stored row still has version.
func (s *Store) replace(ctx context.Context, profile model.UserProfile, version int64) error {
	result := s.db.WithContext(ctx).Model(&profileRow{}).
		Where("username = ? AND version = ?", profile.Username, version).
		Updates(map[string]any{
			"first_name":         profile.FirstName,
			"last_name":          profile.LastName,
			"profile_picture_id": profile.ProfilePictureID,
			"version":            version + 1,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return translate("update profile", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.ConflictError{Message: fmt.Sprintf("profile %s was modified concurrently", profile.Username)}
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, username string) error {
	result := s.db.WithContext(ctx).Where("username = ?", username).Delete(&profileRow{})
	if result.Error != nil {
		return translate("delete profile", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "profile", ID: username}
	}
	return nil
}

var _ registryprofile.ProfileStore = (*Store)(nil)
