package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/storage"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key := range m.objects {
		if strings.HasPrefix(key, aws.ToString(input.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func setupManager(t *testing.T, retention time.Duration) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`INSERT INTO users (username, password_hash, display_name, role, family_id, created_at, updated_at)
		VALUES ('mom', 'x', 'Mom', 'parent', 'fam', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	mock := newMockS3()
	m := newManager(db, mock, Config{
		S3:         storage.Config{Bucket: "backups"},
		Passphrase: "hunter22",
		Retention:  retention,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return m, mock, db
}

func TestRunAndRestore(t *testing.T) {
	m, mock, _ := setupManager(t, 0)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 0, 5, 0, 0, time.UTC)

	res, err := m.Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Key != "backups/chorequest-2026-03-14T000500Z.db.enc" {
		t.Errorf("key = %q", res.Key)
	}
	if bytes.HasPrefix(mock.objects[res.Key], []byte("SQLite format 3")) {
		t.Error("uploaded archive should be encrypted")
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, "latest", dst); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var name string
	if err := restored.QueryRow(`SELECT username FROM users`).Scan(&name); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if name != "mom" {
		t.Errorf("username = %q, want mom", name)
	}
}

func TestRestoreRefusesExistingFile(t *testing.T) {
	m, _, _ := setupManager(t, 0)
	ctx := context.Background()
	res, err := m.Run(ctx, time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, res.Key, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := m.Restore(ctx, res.Key, dst); err == nil {
		t.Error("restoring over an existing file should fail")
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	m, _, _ := setupManager(t, 0)
	ctx := context.Background()
	res, err := m.Run(ctx, time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	m.passphrase = "not-it"
	err = m.Restore(ctx, strings.TrimPrefix(res.Key, keyPrefix), filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("err = %v, want ErrDecrypt", err)
	}
}

func TestRunPrunesOldArchives(t *testing.T) {
	m, mock, _ := setupManager(t, 7*24*time.Hour)
	mock.objects["backups/chorequest-2026-03-01T000500Z.db.enc"] = []byte("old")
	mock.objects["backups/chorequest-2026-03-10T000500Z.db.enc"] = []byte("recent")
	mock.objects["photos/unrelated.jpg"] = []byte("keep")

	res, err := m.Run(context.Background(), time.Date(2026, 3, 14, 0, 5, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", res.Pruned)
	}
	if _, ok := mock.objects["backups/chorequest-2026-03-01T000500Z.db.enc"]; ok {
		t.Error("archive past retention should be deleted")
	}
	for _, key := range []string{"backups/chorequest-2026-03-10T000500Z.db.enc", "photos/unrelated.jpg", res.Key} {
		if _, ok := mock.objects[key]; !ok {
			t.Errorf("%s should be kept", key)
		}
	}
}

func TestRunUploadError(t *testing.T) {
	m, mock, _ := setupManager(t, 0)
	mock.putErr = errors.New("bucket gone")

	if _, err := m.Run(context.Background(), time.Now()); err == nil {
		t.Error("expected upload error")
	}
}
