package pgstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/chat-service/internal/config"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrymigrate "github.com/chirino/chat-service/internal/registry/migrate"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	registryimage.Register(registryimage.Plugin{
		Name:   "postgres",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 120, Migrator: &imageMigrator{}})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func open(url string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("pgstore: %w", err)
	}
	return db, nil
}

func load(ctx context.Context) (registryimage.ImageStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgstore: missing config in context")
	}
	db, err := open(cfg.ResolvedImageDBURL())
	if err != nil {
		return nil, err
	}
	return New(db, cfg.ResolvedTempDir()), nil
}

type imageMigrator struct{}

func (m *imageMigrator) Name() string { return "image-schema" }
func (m *imageMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.ResolvedImageStoreType() != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := open(cfg.ResolvedImageDBURL())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return AutoMigrate(ctx, db)
}

// AutoMigrate creates the images table.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&imageRecord{}); err != nil {
		return fmt.Errorf("pgstore: auto-migrate images: %w", err)
	}
	return nil
}

type imageRecord struct {
	ID          string    `gorm:"column:id;type:uuid;primaryKey"`
	Data        []byte    `gorm:"column:data;type:bytea;not null"`
	Size        int64     `gorm:"column:size;not null"`
	SHA256      string    `gorm:"column:sha256;not null"`
	ContentType string    `gorm:"column:content_type"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (imageRecord) TableName() string { return "images" }

// PgImageStore keeps each image as a bytea row. Uploads are capped by the
// configured image size, so a row always fits in memory.
type PgImageStore struct {
	db      *gorm.DB
	tempDir string
}

// New returns a store over db. The images table must exist (see AutoMigrate).
func New(db *gorm.DB, tempDir string) *PgImageStore {
	return &PgImageStore{db: db, tempDir: tempDir}
}

func (s *PgImageStore) Upload(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryimage.Image, error) {
	spooled, err := tempfiles.Spool(s.tempDir, "chat-service-pg-upload-*", data, maxSize)
	if err != nil {
		return nil, err
	}
	defer spooled.Close()

	buf, err := io.ReadAll(spooled.File)
	if err != nil {
		return nil, fmt.Errorf("pgstore: read upload buffer: %w", err)
	}
	rec := imageRecord{
		ID:          uuid.NewString(),
		Data:        buf,
		Size:        spooled.Size,
		SHA256:      spooled.SHA256,
		ContentType: contentType,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("pgstore: insert image: %w", err)
	}
	return &registryimage.Image{ID: rec.ID, Size: rec.Size, SHA256: rec.SHA256, ContentType: contentType}, nil
}

func (s *PgImageStore) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	var rec imageRecord
	err := s.db.WithContext(ctx).Select("data").Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get image: %w", err)
	}
	return io.NopCloser(bytes.NewReader(rec.Data)), nil
}

func (s *PgImageStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&imageRecord{})
	if result.Error != nil {
		return fmt.Errorf("pgstore: delete image: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	return nil
}

var _ registryimage.ImageStore = (*PgImageStore)(nil)
