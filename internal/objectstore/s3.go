package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/projsync/internal/common"
	"github.com/dmitrijs2005/projsync/internal/filex"
	"github.com/dmitrijs2005/projsync/internal/logging"
)

// s3API is the part of *s3.Client the store uses.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config selects the bucket and how to reach it.
//
// AccessKey/SecretKey take precedence over Profile; with neither set the
// SDK default credential chain is used. BaseEndpoint and UsePathStyle serve
// S3-compatible servers such as MinIO.
type S3Config struct {
	Bucket       string
	Region       string
	Profile      string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	UsePathStyle bool
	Timeout      time.Duration
}

// S3Store keeps objects in one S3 bucket.
type S3Store struct {
	client  s3API
	bucket  string
	timeout time.Duration
	logger  logging.Logger
}

// NewS3Store builds the client and checks that the bucket is reachable.
func NewS3Store(ctx context.Context, cfg S3Config, logger logging.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is not set")
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	switch {
	case cfg.AccessKey != "":
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	case cfg.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	s := NewS3StoreWithClient(client, cfg.Bucket, cfg.Timeout, logger)

	hctx, cancel := s.opCtx(ctx)
	defer cancel()
	if _, err := client.HeadBucket(hctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("error reaching bucket %s: %w", cfg.Bucket, err)
	}

	return s, nil
}

func NewS3StoreWithClient(client s3API, bucket string, timeout time.Duration, logger logging.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, timeout: timeout, logger: logger}
}

func (s *S3Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *S3Store) Enabled() bool {
	return s != nil && s.client != nil && s.bucket != ""
}

func (s *S3Store) Exists(ctx context.Context, key string) bool {
	ok, _ := s.Stat(ctx, key)
	return ok
}

// Stat issues a HeadObject. Only a not-found answer counts as absent;
// throttling, timeouts and access errors are returned.
func (s *S3Store) Stat(ctx context.Context, key string) (bool, error) {
	if !s.Enabled() {
		return false, common.ErrSyncDisabled
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		s.logger.Debug(ctx, "object not found", "key", key)
		return false, nil
	default:
		s.logger.Warn(ctx, "object check failed", "key", key, "error", err)
		return false, fmt.Errorf("error checking %s: %w", key, err)
	}
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

func (s *S3Store) Put(ctx context.Context, localPath, key string) bool {
	if !s.Enabled() {
		return false
	}
	f, err := os.Open(localPath)
	if err != nil {
		s.logger.Warn(ctx, "upload skipped", "path", localPath, "error", err)
		return false
	}
	defer f.Close()

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		s.logger.Warn(ctx, "upload failed", "key", key, "error", err)
		return false
	}
	s.logger.Debug(ctx, "uploaded", "key", key)
	return true
}

func (s *S3Store) Get(ctx context.Context, key, localPath string) bool {
	if !s.Enabled() {
		return false
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Warn(ctx, "download failed", "key", key, "error", err)
		return false
	}
	defer out.Body.Close()

	if err := writeStream(localPath, out.Body); err != nil {
		s.logger.Warn(ctx, "download write failed", "key", key, "path", localPath, "error", err)
		return false
	}
	s.logger.Debug(ctx, "downloaded", "key", key)
	return true
}

func (s *S3Store) Delete(ctx context.Context, key string) bool {
	if !s.Enabled() {
		return false
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		s.logger.Warn(ctx, "delete failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *S3Store) PutDir(ctx context.Context, localDir, prefix string) int {
	if !s.Enabled() {
		return 0
	}
	files, err := filex.ListFiles(localDir)
	if err != nil {
		s.logger.Warn(ctx, "directory walk failed", "path", localDir, "error", err)
	}

	n := 0
	for _, rel := range files {
		if s.Put(ctx, filepath.Join(localDir, filepath.FromSlash(rel)), joinKey(prefix, rel)) {
			n++
		}
	}
	return n
}

// listKeys pages through every key under prefix. A listing error ends the
// walk early and the keys seen so far are returned.
func (s *S3Store) listKeys(ctx context.Context, prefix string) []string {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		pctx, cancel := s.opCtx(ctx)
		page, err := p.NextPage(pctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "listing failed", "prefix", prefix, "error", err)
			return keys
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys
}

func (s *S3Store) GetDir(ctx context.Context, prefix, localDir string) int {
	if !s.Enabled() {
		return 0
	}
	n := 0
	for _, key := range s.listKeys(ctx, prefix) {
		rel := relKey(prefix, key)
		if rel == "" {
			continue
		}
		if s.Get(ctx, key, filepath.Join(localDir, filepath.FromSlash(rel))) {
			n++
		}
	}
	return n
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) int {
	if !s.Enabled() {
		return 0
	}
	n := 0
	for _, key := range s.listKeys(ctx, prefix) {
		if s.Delete(ctx, key) {
			n++
		}
	}
	return n
}
