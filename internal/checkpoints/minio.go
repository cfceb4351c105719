package checkpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/gradkit/gradkit/pkg/errors"
)

// MinioConfig holds the connection settings of an object-storage backed
// checkpoint store.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" validate:"required"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key" validate:"required"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" validate:"required"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// MinioStore writes checkpoints as objects in a MinIO (or any S3
// compatible) bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to the endpoint and makes sure the bucket
// exists
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.InfrastructureError("minio", err)
	}
	store := &MinioStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.InfrastructureError("minio", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.InfrastructureError("minio", err)
		}
	}
	return store, nil
}

// NewMinioStoreWithClient wraps an existing client, for tests and shared
// connections
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioStore) objectName(name string) string {
	if s.prefix == "" {
		return name + fileExtension
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name + fileExtension
}

// Save uploads the checkpoint as one JSON object
func (s *MinioStore) Save(ctx context.Context, name string, state map[string]any) error {
	if err := validateName(name); err != nil {
		return err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "CHECKPOINT_ENCODE", "cannot encode checkpoint")
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.objectName(name),
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return errors.InfrastructureError("minio", err)
	}
	return nil
}

// Load downloads and decodes a checkpoint
func (s *MinioStore) Load(ctx context.Context, name string) (map[string]any, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	object, err := s.client.GetObject(ctx, s.bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.InfrastructureError("minio", err)
	}
	defer object.Close()
	payload, err := io.ReadAll(object)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, errors.NotFoundError("checkpoint " + name)
		}
		return nil, errors.InfrastructureError("minio", err)
	}
	return decode(payload)
}

// List returns the stored checkpoint names under the prefix, sorted
func (s *MinioStore) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = strings.TrimSuffix(s.prefix, "/") + "/"
	}
	names := make([]string, 0)
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, errors.InfrastructureError("minio", object.Err)
		}
		key := strings.TrimPrefix(object.Key, prefix)
		if !strings.HasSuffix(key, fileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(key, fileExtension))
	}
	sort.Strings(names)
	return names, nil
}
