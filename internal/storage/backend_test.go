package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulse-go/internal/collection"
	"impulse-go/internal/config"
)

// backends returns a fresh instance of every Storage implementation.
func backends(t *testing.T) map[string]func(t *testing.T) collection.Storage {
	return map[string]func(t *testing.T) collection.Storage{
		"filesystem": func(t *testing.T) collection.Storage {
			s, err := NewFileSystemStorage(filepath.Join(t.TempDir(), "replays"))
			require.NoError(t, err)
			return s
		},
		"memory": func(t *testing.T) collection.Storage {
			return NewMemoryStorage()
		},
		"s3": func(t *testing.T) collection.Storage {
			s, _ := newTestS3Storage("us-east-1")
			return s
		},
	}
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for name, newStorage := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("key layout", func(t *testing.T) {
				s := newStorage(t)
				assert.Equal(t, "G/C/r1.replay", s.Key("r1", []string{"G", "C"}))
				assert.Equal(t, "r1.replay", s.Key("r1", nil))
			})

			t.Run("save then exists and size", func(t *testing.T) {
				s := newStorage(t)
				comps := []string{"RLCS 2024", "EU"}

				ok, err := s.Exists(ctx, "r1", comps)
				require.NoError(t, err)
				assert.False(t, ok)

				size, err := s.Size(ctx, "r1", comps)
				require.NoError(t, err)
				assert.Zero(t, size)

				res, err := s.Save(ctx, "r1", []byte("replay-bytes"), comps, nil)
				require.NoError(t, err)
				assert.Equal(t, "RLCS 2024/EU/r1.replay", res.Key)
				assert.Equal(t, int64(12), res.Size)

				ok, err = s.Exists(ctx, "r1", comps)
				require.NoError(t, err)
				assert.True(t, ok)

				size, err = s.Size(ctx, "r1", comps)
				require.NoError(t, err)
				assert.Equal(t, int64(12), size)

				ok, err = s.Exists(ctx, "r1", []string{"RLCS 2024"})
				require.NoError(t, err)
				assert.False(t, ok, "same id under another folder is a different object")
			})

			t.Run("save overwrites", func(t *testing.T) {
				s := newStorage(t)
				_, err := s.Save(ctx, "r1", []byte("first"), nil, nil)
				require.NoError(t, err)
				_, err = s.Save(ctx, "r1", []byte("second!"), nil, nil)
				require.NoError(t, err)

				size, err := s.Size(ctx, "r1", nil)
				require.NoError(t, err)
				assert.Equal(t, int64(7), size)
			})

			t.Run("list and stats by prefix", func(t *testing.T) {
				s := newStorage(t)
				for _, obj := range []struct {
					id    string
					comps []string
					data  string
				}{
					{"r1", []string{"G", "C"}, "aaaa"},
					{"r2", []string{"G", "C"}, "bb"},
					{"r3", []string{"G", "D"}, "c"},
					{"r4", []string{"Other"}, "dddddd"},
				} {
					_, err := s.Save(ctx, obj.id, []byte(obj.data), obj.comps, nil)
					require.NoError(t, err)
				}
				require.NoError(t, s.PutFile(ctx, "logs/run.json", strings.NewReader("{}"), 2))

				ids, err := s.List(ctx, "G")
				require.NoError(t, err)
				assert.Equal(t, []string{"r1", "r2", "r3"}, ids)

				ids, err = s.List(ctx, "G/C/")
				require.NoError(t, err)
				assert.Equal(t, []string{"r1", "r2"}, ids)

				ids, err = s.List(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, []string{"r1", "r2", "r3", "r4"}, ids, "auxiliary files are not replays")

				ids, err = s.List(ctx, "Missing")
				require.NoError(t, err)
				assert.Empty(t, ids)

				stats, err := s.Stats(ctx, "G")
				require.NoError(t, err)
				assert.Equal(t, 3, stats.Count)
				assert.Equal(t, int64(7), stats.TotalBytes)

				stats, err = s.Stats(ctx, "")
				require.NoError(t, err)
				assert.Equal(t, 4, stats.Count)
				assert.Equal(t, int64(13), stats.TotalBytes)
			})

			t.Run("validate setup", func(t *testing.T) {
				s := newStorage(t)
				assert.NoError(t, s.ValidateSetup(ctx))
			})
		})
	}
}

func TestFileSystemStorage_MetadataSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStorage(root)
	require.NoError(t, err)

	meta := &collection.ReplayMetadata{ReplayID: "r1", Title: "Grand Final", BlueTeam: "G2", OrangeTeam: "Falcons", GroupID: "G"}
	res, err := s.Save(context.Background(), "r1", []byte("bytes"), []string{"G"}, meta)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "G", "r1.replay"), res.Location)

	raw, err := os.ReadFile(filepath.Join(root, "G", "r1.metadata.json"))
	require.NoError(t, err)

	var got collection.ReplayMetadata
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, *meta, got)
}

func TestFileSystemStorage_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStorage(root)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "r1", []byte("bytes"), []string{"G"}, nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "G"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1.replay", entries[0].Name())
}

func TestFileSystemStorage_PutFileSizeMismatch(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStorage(root)
	require.NoError(t, err)

	err = s.PutFile(context.Background(), "logs/run.json", strings.NewReader("{}"), 10)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "logs", "run.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileSystemStorage_ValidateSetupNotADirectory(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStorage(root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(root))
	require.NoError(t, os.WriteFile(root, []byte("x"), 0644))

	assert.Error(t, s.ValidateSetup(context.Background()))
}

func TestMemoryStorage_DeleteAndMetadata(t *testing.T) {
	s := NewMemoryStorage()
	meta := &collection.ReplayMetadata{ReplayID: "r1", GroupID: "G"}

	res, err := s.Save(context.Background(), "r1", []byte("x"), []string{"G"}, meta)
	require.NoError(t, err)
	assert.Equal(t, "memory://G/r1.replay", res.Location)

	got, ok := s.Metadata(res.Key)
	require.True(t, ok)
	assert.Equal(t, "G", got.GroupID)

	s.Delete(res.Key)
	ok, err = s.Exists(context.Background(), "r1", []string{"G"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewStorageFromConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.StorageConfig
		wantConfig bool
		check      func(t *testing.T, s collection.Storage)
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Type: "memory"},
			check: func(t *testing.T, s collection.Storage) {
				assert.IsType(t, &MemoryStorage{}, s)
			},
		},
		{
			name: "local",
			cfg:  config.StorageConfig{Type: "local", LocalDir: filepath.Join(t.TempDir(), "nested", "replays")},
			check: func(t *testing.T, s collection.Storage) {
				fs, ok := s.(*FileSystemStorage)
				require.True(t, ok)
				_, err := os.Stat(fs.Root())
				assert.NoError(t, err)
			},
		},
		{
			name: "s3 with static keys",
			cfg: config.StorageConfig{
				Type: "s3", S3Bucket: "b", S3Region: "eu-west-1",
				S3AccessKeyID: "id", S3SecretAccessKey: "secret", S3Endpoint: "http://localhost:9000",
			},
			check: func(t *testing.T, s collection.Storage) {
				s3s, ok := s.(*S3Storage)
				require.True(t, ok)
				assert.Equal(t, "b", s3s.Bucket())
			},
		},
		{
			name:       "local without dir",
			cfg:        config.StorageConfig{Type: "local"},
			wantConfig: true,
		},
		{
			name:       "s3 without bucket",
			cfg:        config.StorageConfig{Type: "s3", S3Region: "eu-west-1"},
			wantConfig: true,
		},
		{
			name:       "unknown type",
			cfg:        config.StorageConfig{Type: "ftp"},
			wantConfig: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStorageFromConfig(context.Background(), tt.cfg)
			if tt.wantConfig {
				var ce *config.ConfigurationError
				require.ErrorAs(t, err, &ce)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}
