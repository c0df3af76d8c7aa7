package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/chirino/chat-service/internal/config"
	registryimage "github.com/chirino/chat-service/internal/registry/image"
	registrystore "github.com/chirino/chat-service/internal/registry/store"
	"github.com/chirino/chat-service/internal/tempfiles"
	"github.com/google/uuid"
)

func init() {
	registryimage.Register(registryimage.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registryimage.ImageStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: CHAT_SERVICE_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return New(client, cfg.S3Bucket, cfg.S3Prefix, cfg.S3ExternalEndpoint, cfg.ResolvedTempDir()), nil
}

// S3ImageStore keeps each image as one object under prefix/id.
type S3ImageStore struct {
	client           *s3.Client
	presigner        *s3.PresignClient
	bucket           string
	prefix           string
	externalEndpoint string
	tempDir          string
}

// New returns a store writing to bucket through client. externalEndpoint, when
// set, replaces the scheme and host of presigned URLs.
func New(client *s3.Client, bucket, prefix, externalEndpoint, tempDir string) *S3ImageStore {
	return &S3ImageStore{
		client:           client,
		presigner:        s3.NewPresignClient(client),
		bucket:           bucket,
		prefix:           strings.Trim(strings.TrimSpace(prefix), "/"),
		externalEndpoint: strings.TrimSpace(externalEndpoint),
		tempDir:          tempDir,
	}
}

// key returns the object key for an image id. The prefix is applied at access
// time and never part of the id.
func (s *S3ImageStore) key(id string) string {
	if s.prefix != "" {
		return s.prefix + "/" + id
	}
	return id
}

// translate maps S3 API errors onto the store error taxonomy.
func translate(op, id string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &registrystore.NotFoundError{Resource: "image", ID: id}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return &registrystore.NotFoundError{Resource: "image", ID: id}
		case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
			return &registrystore.UnavailableError{Op: op, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &registrystore.UnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("s3store: %s: %w", op, err)
}

func (s *S3ImageStore) Upload(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*registryimage.Image, error) {
	spooled, err := tempfiles.Spool(s.tempDir, "chat-service-s3-upload-*", data, maxSize)
	if err != nil {
		return nil, err
	}
	defer spooled.Close()

	id := uuid.NewString()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          spooled.File,
		ContentLength: aws.Int64(spooled.Size),
		ContentType:   aws.String(contentType),
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	if err != nil {
		return nil, translate("put object", id, err)
	}
	return &registryimage.Image{ID: id, Size: spooled.Size, SHA256: spooled.SHA256, ContentType: contentType}, nil
}

func (s *S3ImageStore) Download(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, translate("get object", id, err)
	}
	return resp.Body, nil
}

// Delete fails with NotFoundError for a missing id. DeleteObject alone succeeds
// on missing keys, so existence is checked first.
func (s *S3ImageStore) Delete(ctx context.Context, id string) error {
	key := s.key(id)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return translate("head object", id, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return translate("delete object", id, err)
	}
	return nil
}

func (s *S3ImageStore) SignedURL(ctx context.Context, id string, expiry time.Duration) (*url.URL, error) {
	resp, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("s3store: presign: %w", err)
	}
	parsed, err := url.Parse(resp.URL)
	if err != nil {
		return nil, err
	}
	if s.externalEndpoint == "" {
		return parsed, nil
	}
	external, err := url.Parse(s.externalEndpoint)
	if err != nil {
		return nil, fmt.Errorf("s3store: parse external endpoint: %w", err)
	}
	parsed.Scheme = external.Scheme
	parsed.Host = external.Host
	if strings.TrimSpace(external.Path) != "" && external.Path != "/" {
		parsed.Path = strings.TrimRight(external.Path, "/") + parsed.Path
	}
	return parsed, nil
}

var (
	_ registryimage.ImageStore     = (*S3ImageStore)(nil)
	_ registryimage.SignedURLStore = (*S3ImageStore)(nil)
)
