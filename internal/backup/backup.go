// Package backup takes encrypted snapshots of the database and keeps them
// in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/chorequest/internal/storage"
)

const keyPrefix = "backups/"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	S3         storage.Config
	Passphrase string
	// Retention removes archives older than this after each snapshot.
	// Zero keeps everything.
	Retention time.Duration
}

// Result describes one snapshot.
type Result struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	Pruned int    `json:"pruned"`
}

type Manager struct {
	db         *sql.DB
	client     s3Client
	bucket     string
	passphrase string
	retention  time.Duration
	logger     *slog.Logger
}

func NewManager(db *sql.DB, cfg Config, logger *slog.Logger) *Manager {
	return newManager(db, storage.NewS3Client(cfg.S3), cfg, logger)
}

func newManager(db *sql.DB, client s3Client, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		db:         db,
		client:     client,
		bucket:     cfg.S3.Bucket,
		passphrase: cfg.Passphrase,
		retention:  cfg.Retention,
		logger:     logger,
	}
}

// Run snapshots the database with VACUUM INTO, encrypts it and uploads it
// under backups/chorequest-<timestamp>.db.enc, then prunes old archives.
// A pruning failure is logged and does not fail the snapshot.
func (m *Manager) Run(ctx context.Context, now time.Time) (*Result, error) {
	dir, err := os.MkdirTemp("", "chorequest-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plaintext, m.passphrase)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	key := keyPrefix + "chorequest-" + now.UTC().Format("2006-01-02T150405Z") + ".db.enc"
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}

	res := &Result{Key: key, Size: int64(len(sealed))}
	m.logger.Info("backup uploaded", "key", key, "size", res.Size)

	if m.retention > 0 {
		res.Pruned, err = m.prune(ctx, now.Add(-m.retention))
		if err != nil {
			m.logger.Warn("prune old backups", "error", err)
		}
	}
	return res, nil
}

// List returns archive keys, oldest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	// Timestamped names sort chronologically.
	slices.Sort(keys)
	return keys, nil
}

func (m *Manager) prune(ctx context.Context, before time.Time) (int, error) {
	keys, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := keyPrefix + "chorequest-" + before.UTC().Format("2006-01-02T150405Z")
	pruned := 0
	for _, key := range keys {
		if key >= cutoff {
			break
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return pruned, fmt.Errorf("delete %s: %w", key, err)
		}
		pruned++
	}
	return pruned, nil
}

// Restore downloads an archive, decrypts it, checks its integrity and
// writes it to dst. The key "latest" picks the newest archive. dst must not
// exist; the running server keeps its own file untouched.
func (m *Manager) Restore(ctx context.Context, key, dst string) error {
	if key == "latest" {
		keys, err := m.List(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return errors.New("no backups found")
		}
		key = keys[len(keys)-1]
	}
	if !strings.HasPrefix(key, keyPrefix) {
		key = keyPrefix + key
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	sealed, err := io.ReadAll(out.Body)
	out.Body.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	plaintext, err := Open(sealed, m.passphrase)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := f.Write(plaintext); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}

	if err := checkIntegrity(ctx, dst); err != nil {
		os.Remove(dst)
		return err
	}
	m.logger.Info("backup restored", "key", key, "path", dst)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
