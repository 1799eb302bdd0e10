package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

const snapshotPrefix = "explorations/"

// SnapshotKey is the object key of one archived version.
func SnapshotKey(explorationID string, version int64) string {
	return fmt.Sprintf("%s%s/v%06d.json", snapshotPrefix, explorationID, version)
}

// SnapshotStore implements exploration.SnapshotStore.
type SnapshotStore struct {
	client *Client
	logger logging.Logger
}

// NewSnapshotStore binds a store to client's bucket.
func NewSnapshotStore(client *Client, logger logging.Logger) *SnapshotStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SnapshotStore{client: client, logger: logger}
}

var _ exploration.SnapshotStore = (*SnapshotStore)(nil)

// PutSnapshot writes s as indented JSON and returns the object key.
func (st *SnapshotStore) PutSnapshot(ctx context.Context, s *exploration.ExplorationState) (string, error) {
	if s == nil || s.ID == "" {
		return "", errors.New(errors.ErrCodeValidation, "snapshot requires an exploration id")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal snapshot")
	}

	key := SnapshotKey(s.ID, s.Version)
	info, err := st.client.api.PutObject(ctx, st.client.Bucket(), key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"exploration-id": s.ID,
			"version":        fmt.Sprintf("%d", s.Version),
			"generation":     fmt.Sprintf("%d", s.CurrentGeneration),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload snapshot")
	}

	st.logger.Info("Snapshot archived",
		logging.ExplorationID(s.ID),
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return key, nil
}

// GetSnapshot reads back the snapshot stored at key.
func (st *SnapshotStore) GetSnapshot(ctx context.Context, key string) (*exploration.ExplorationState, error) {
	rc, err := st.client.open(ctx, st.client.Bucket(), key)
	if err != nil {
		return nil, mapObjectError(err, key)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, mapObjectError(err, key)
	}
	var s exploration.ExplorationState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode snapshot")
	}
	return &s, nil
}

// ListSnapshots returns the keys archived for one exploration, oldest first.
func (st *SnapshotStore) ListSnapshots(ctx context.Context, explorationID string) ([]string, error) {
	prefix := snapshotPrefix + explorationID + "/"
	var keys []string
	for obj := range st.client.api.ListObjects(ctx, st.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list snapshots")
		}
		if strings.HasSuffix(obj.Key, ".json") {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func mapObjectError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrap(err, errors.ErrCodeNotFound, "snapshot not found: "+key)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, "failed to read snapshot")
}
