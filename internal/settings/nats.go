package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store on a JetStream KeyValue bucket so several
// instances can share staleness markers.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// NewNATSStore connects to url and opens (or creates) bucket.
func NewNATSStore(ctx context.Context, url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url, nats.Name("taxosync-settings"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := openBucket(ctx, js, bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("NATS preferences store initialized", "url", url, "bucket", bucket)
	return &NATSStore{conn: conn, kv: kv, bucket: bucket}, nil
}

func openBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to open KV bucket: %w", err)
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "taxosync preferences (staleness markers, enablement)",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket: %w", err)
	}
	slog.Info("Created KV bucket for preferences", "bucket", bucket)
	return kv, nil
}

// kvKey maps preference keys onto the NATS key alphabet (no ':').
func kvKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func (s *NATSStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.kv.Get(ctx, kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (s *NATSStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.kv.PutString(ctx, kvKey(key), value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Close closes the NATS connection.
func (s *NATSStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
