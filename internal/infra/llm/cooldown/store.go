package cooldown

import (
	"context"

	redisclient "github.com/vietddude/verdict/internal/infra/redis"
	"github.com/vietddude/verdict/internal/infra/storage/file"
)

// Store persists the flat "provider:model" -> epoch-seconds snapshot.
type Store interface {
	Load(ctx context.Context) (map[string]float64, error)
	Save(ctx context.Context, snapshot map[string]float64) error
}

// FileStore keeps the snapshot in a JSON object on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (map[string]float64, error) {
	snapshot := map[string]float64{}
	if _, err := file.ReadJSON(s.path, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *FileStore) Save(ctx context.Context, snapshot map[string]float64) error {
	return file.WriteJSON(s.path, snapshot)
}

// RedisStore keeps the snapshot in one Redis hash, so several processes on
// different hosts can share a cooldown view.
type RedisStore struct {
	client *redisclient.Client
	key    string
}

func NewRedisStore(client *redisclient.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]float64, error) {
	return s.client.LoadTimestamps(ctx, s.key)
}

func (s *RedisStore) Save(ctx context.Context, snapshot map[string]float64) error {
	return s.client.ReplaceTimestamps(ctx, s.key, snapshot)
}
