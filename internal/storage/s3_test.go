package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulse-go/internal/collection"
)

// fakeS3 is an in-memory bucket implementing both s3API and uploader.
// Listing is paged two objects at a time to exercise the paginator.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]*types.CreateBucketConfiguration
	objects  map[string][]byte
	metadata map[string]map[string]string

	headErr   error
	createErr error
	creates   int
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{
		buckets:  make(map[string]*types.CreateBucketConfiguration),
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
	for _, b := range buckets {
		f.buckets[b] = nil
	}
	return f
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.buckets[aws.ToString(in.Bucket)] = in.CreateBucketConfiguration
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeS3) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.metadata[key] = in.Metadata
	return &manager.UploadOutput{Key: in.Key}, nil
}

func newTestS3Storage(region string) (*S3Storage, *fakeS3) {
	fake := newFakeS3("replays")
	return newS3Storage(fake, fake, "replays", region), fake
}

func TestS3Storage_SaveAttachesMetadata(t *testing.T) {
	s, fake := newTestS3Storage("us-east-1")
	meta := &collection.ReplayMetadata{ReplayID: "r1", Title: "Final", BlueTeam: "Karmine Corp", GroupID: "G"}

	res, err := s.Save(context.Background(), "r1", []byte("data"), []string{"G", "C"}, meta)
	require.NoError(t, err)

	assert.Equal(t, "s3://replays/G/C/r1.replay", res.Location)
	assert.Equal(t, "Karmine Corp", fake.metadata["G/C/r1.replay"]["blue_team"])
	assert.Equal(t, "G", fake.metadata["G/C/r1.replay"]["group_id"])
}

func TestS3Storage_HeadErrorSurfaces(t *testing.T) {
	s, fake := newTestS3Storage("us-east-1")
	fake.headErr = errors.New("access denied")

	_, err := s.Exists(context.Background(), "r1", nil)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "head", se.Op)
}

func TestS3Storage_ValidateSetup(t *testing.T) {
	t.Run("existing bucket is left alone", func(t *testing.T) {
		s, fake := newTestS3Storage("eu-west-1")
		require.NoError(t, s.ValidateSetup(context.Background()))
		assert.Equal(t, 0, fake.creates)
	})

	t.Run("creates missing bucket with location constraint", func(t *testing.T) {
		fake := newFakeS3()
		s := newS3Storage(fake, fake, "new-bucket", "eu-west-1")

		require.NoError(t, s.ValidateSetup(context.Background()))
		require.Equal(t, 1, fake.creates)
		cfg := fake.buckets["new-bucket"]
		require.NotNil(t, cfg)
		assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), cfg.LocationConstraint)

		// second call sees the bucket
		require.NoError(t, s.ValidateSetup(context.Background()))
		assert.Equal(t, 1, fake.creates)
	})

	t.Run("us-east-1 has no location constraint", func(t *testing.T) {
		fake := newFakeS3()
		s := newS3Storage(fake, fake, "new-bucket", "us-east-1")

		require.NoError(t, s.ValidateSetup(context.Background()))
		_, ok := fake.buckets["new-bucket"]
		require.True(t, ok)
		assert.Nil(t, fake.buckets["new-bucket"])
	})

	t.Run("already owned is not an error", func(t *testing.T) {
		fake := newFakeS3()
		fake.createErr = &types.BucketAlreadyOwnedByYou{}
		s := newS3Storage(fake, fake, "mine", "eu-west-1")

		assert.NoError(t, s.ValidateSetup(context.Background()))
	})

	t.Run("other create errors are reported", func(t *testing.T) {
		fake := newFakeS3()
		fake.createErr = errors.New("forbidden")
		s := newS3Storage(fake, fake, "theirs", "eu-west-1")

		assert.Error(t, s.ValidateSetup(context.Background()))
	})
}
