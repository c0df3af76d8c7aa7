package mongostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chirino/chat-service/internal/config"
	chatmongo "github.com/chirino/chat-service/internal/plugin/store/mongo"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registryimage.Register(registryimage.Plugin{
		Name:   "mongo",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

const bucketName = "images"

func load(ctx context.Context) (registryimage.ImageStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("mongostore: missing config in context")
	}
	imageCfg := *cfg
	imageCfg.DBURL = cfg.ResolvedImageDBURL()
	client, err := chatmongo.Connect(ctx, &imageCfg)
	if err != nil {
		return nil, fmt.Errorf("mongostore: %w", err)
	}
	return New(client.Database(cfg.DatabaseName), cfg.ResolvedTempDir()), nil
}

// MongoImageStore keeps images in a GridFS bucket keyed by UUID string ids.
type MongoImageStore struct {
	bucket  *mongo.GridFSBucket
	tempDir string
}

// New returns a store using the "images" GridFS bucket of db.
func New(db *mongo.Database, tempDir string) *MongoImageStore {
	return &MongoImageStore{
		bucket:  db.GridFSBucket(options.GridFSBucket().SetName(bucketName)),
		tempDir: tempDir,
	}
}

func (s *MongoImageStore) Upload(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryimage.Image, error) {
	spooled, err := tempfiles.Spool(s.tempDir, "chat-service-gridfs-upload-*", data, maxSize)
	if err != nil {
		return nil, err
	}
	defer spooled.Close()

	id := uuid.NewString()
	opts := options.GridFSUpload().SetMetadata(bson.D{
		{Key: "contentType", Value: contentType},
		{Key: "sha256", Value: spooled.SHA256},
	})
	if err := s.bucket.UploadFromStreamWithID(ctx, id, id, spooled.File, opts); err != nil {
		return nil, fmt.Errorf("mongostore: gridfs upload: %w", err)
	}
	return &registryimage.Image{ID: id, Size: spooled.Size, SHA256: spooled.SHA256, ContentType: contentType}, nil
}

// Download spools the GridFS stream to a temp file so the cursor is released
// before the caller starts writing the response.
func (s *MongoImageStore) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	ds, err := s.bucket.OpenDownloadStream(ctx, id)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: open download stream: %w", err)
	}
	defer ds.Close()

	tmp, err := tempfiles.Create(s.tempDir, "chat-service-gridfs-download-*")
	if err != nil {
		return nil, fmt.Errorf("mongostore: create temp file: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if _, err := io.Copy(tmp, ds); err != nil {
		cleanup()
		return nil, fmt.Errorf("mongostore: spool gridfs stream: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("mongostore: rewind temp file: %w", err)
	}
	return tempfiles.NewDeleteOnClose(tmp), nil
}

func (s *MongoImageStore) Delete(ctx context.Context, id string) error {
	err := s.bucket.Delete(ctx, id)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	if err != nil {
		return fmt.Errorf("mongostore: gridfs delete: %w", err)
	}
	return nil
}

var _ registryimage.ImageStore = (*MongoImageStore)(nil)
