package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"impulse-go/internal/collection"
	"impulse-go/internal/config"
)

// defaultRegion is the one region where CreateBucket must not carry a
// location constraint.
const defaultRegion = "us-east-1"

// s3API is the subset of the S3 client used by S3Storage.
type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// uploader is satisfied by *manager.Uploader.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Storage stores replays in an S3 bucket under
// <component>/.../<id>.replay, with the replay metadata attached as
// object metadata.
type S3Storage struct {
	client   s3API
	uploader uploader
	bucket   string
	region   string
}

// NewS3Storage creates an S3 store on top of client. Large objects are
// sent as multipart uploads.
func NewS3Storage(client *s3.Client, bucket, region string) *S3Storage {
	return newS3Storage(client, manager.NewUploader(client), bucket, region)
}

func newS3Storage(client s3API, up uploader, bucket, region string) *S3Storage {
	return &S3Storage{client: client, uploader: up, bucket: bucket, region: region}
}

// NewS3StorageFromConfig builds the S3 client from the default AWS
// credential chain, or from static keys when the config carries them.
// A custom endpoint switches to path-style addressing for S3-compatible stores.
func NewS3StorageFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Storage(client, cfg.S3Bucket, cfg.S3Region), nil
}

// Bucket returns the bucket name.
func (s *S3Storage) Bucket() string { return s.bucket }

func (s *S3Storage) Key(replayID string, components []string) string {
	return replayKey(replayID, components)
}

func (s *S3Storage) Save(ctx context.Context, replayID string, data []byte, components []string, meta *collection.ReplayMetadata) (*collection.SaveResult, error) {
	key := s.Key(replayID, components)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	}
	if meta != nil {
		input.Metadata = meta.Map()
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return nil, &StorageError{Op: "save", Key: key, Err: err}
	}
	return &collection.SaveResult{
		Key:      key,
		Size:     int64(len(data)),
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}, nil
}

func (s *S3Storage) Exists(ctx context.Context, replayID string, components []string) (bool, error) {
	_, found, err := s.head(ctx, s.Key(replayID, components))
	return found, err
}

func (s *S3Storage) Size(ctx context.Context, replayID string, components []string) (int64, error) {
	size, _, err := s.head(ctx, s.Key(replayID, components))
	return size, err
}

func (s *S3Storage) head(ctx context.Context, key string) (int64, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, &StorageError{Op: "head", Key: key, Err: err}
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	err := s.each(ctx, prefix, func(obj types.Object) {
		ids = append(ids, replayIDFromKey(aws.ToString(obj.Key)))
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *S3Storage) Stats(ctx context.Context, prefix string) (*collection.StorageStats, error) {
	stats := &collection.StorageStats{}
	err := s.each(ctx, prefix, func(obj types.Object) {
		stats.Count++
		stats.TotalBytes += aws.ToInt64(obj.Size)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// each calls fn for every replay object under prefix, across all pages.
func (s *S3Storage) each(ctx context.Context, prefix string, fn func(types.Object)) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if p := strings.Trim(prefix, "/"); p != "" {
		input.Prefix = aws.String(p + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return &StorageError{Op: "list", Key: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			if isReplayKey(aws.ToString(obj.Key)) {
				fn(obj)
			}
		}
	}
	return nil
}

func (s *S3Storage) PutFile(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// ValidateSetup makes sure the bucket exists, creating it when missing.
// Calling it repeatedly is safe.
func (s *S3Storage) ValidateSetup(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return &StorageError{Op: "head-bucket", Key: s.bucket, Err: err}
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return &StorageError{Op: "create-bucket", Key: s.bucket, Err: err}
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

var _ collection.Storage = (*S3Storage)(nil)
