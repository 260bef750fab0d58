// Package backup snapshots the service's sqlite files so a lost disk does
// not lose the queue, memberships, or audit trail. Snapshots land in a local
// directory and are optionally mirrored to S3.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Info describes one remote copy of a snapshot.
type Info struct {
	Provider string `json:"provider,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SaveResult describes one snapshotted file.
type SaveResult struct {
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Backup *Info  `json:"backup,omitempty"`
}

// Uploader mirrors a local snapshot to remote storage.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) (*Info, error)
}

// Manager writes snapshots under a base directory.
type Manager struct {
	baseDir  string
	uploader Uploader
	now      func() time.Time
}

// NewManager returns a Manager writing under baseDir. An S3 mirror is
// attached when the SHEETBRIDGE_BACKUP_S3_BUCKET environment is configured.
func NewManager(baseDir string) *Manager {
	mgr := &Manager{baseDir: strings.TrimSpace(baseDir), now: time.Now}
	if uploader, err := newS3MirrorFromEnv(); err == nil {
		mgr.uploader = uploader
	}
	return mgr
}

func (m *Manager) BaseDir() string {
	if m == nil || strings.TrimSpace(m.baseDir) == "" {
		return "data/backups"
	}
	return m.baseDir
}

// Snapshot copies each existing source file into a timestamped directory
// under BaseDir. Missing sources are skipped, not errors: a deployment on
// the redis queue backend has no queue file to copy.
func (m *Manager) Snapshot(ctx context.Context, sources ...string) ([]SaveResult, error) {
	stamp := m.now().UTC().Format("20060102-150405")
	dir := filepath.Join(m.BaseDir(), stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	out := make([]SaveResult, 0, len(sources))
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(dir, sanitizeFileName(filepath.Base(src)))
		n, err := copyFile(dst, src)
		if err != nil {
			return out, fmt.Errorf("snapshot %s: %w", src, err)
		}
		result := SaveResult{Path: dst, Bytes: n}
		if m.uploader != nil {
			info, err := m.uploader.UploadFile(ctx, dst)
			if err != nil {
				result.Backup = &Info{Provider: "s3", Error: err.Error()}
			} else {
				result.Backup = info
			}
		}
		out = append(out, result)
	}
	return out, nil
}

func copyFile(dst, src string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

// s3Mirror copies snapshots to an S3 bucket through the aws CLI. Keys are
// content-addressed, so an unchanged database file is uploaded once no
// matter how many snapshots contain it.
type s3Mirror struct {
	bucket   string
	prefix   string
	endpoint string

	mu   sync.Mutex
	seen map[string]Info // content hash -> mirrored copy
}

func newS3MirrorFromEnv() (Uploader, error) {
	bucket := strings.TrimSpace(os.Getenv("SHEETBRIDGE_BACKUP_S3_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("s3 backup disabled")
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, fmt.Errorf("aws cli not found for s3 backup")
	}
	return &s3Mirror{
		bucket:   bucket,
		prefix:   strings.Trim(strings.TrimSpace(os.Getenv("SHEETBRIDGE_BACKUP_S3_PREFIX")), "/"),
		endpoint: strings.TrimSpace(os.Getenv("SHEETBRIDGE_BACKUP_S3_ENDPOINT")),
		seen:     map[string]Info{},
	}, nil
}

func (u *s3Mirror) UploadFile(ctx context.Context, localPath string) (*Info, error) {
	if u == nil {
		return nil, fmt.Errorf("s3 mirror not configured")
	}
	hash, err := hashFile(localPath)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	if info, ok := u.seen[hash]; ok {
		u.mu.Unlock()
		return &info, nil
	}
	u.mu.Unlock()

	key := u.objectKey(hash, filepath.Base(localPath))
	uri := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	args := []string{"s3", "cp", localPath, uri, "--only-show-errors"}
	if u.endpoint != "" {
		args = append(args, "--endpoint-url", u.endpoint)
	}
	out, err := exec.CommandContext(ctx, "aws", args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("aws s3 cp failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	info := Info{Provider: "s3", Bucket: u.bucket, Key: key, URL: uri}
	u.mu.Lock()
	u.seen[hash] = info
	u.mu.Unlock()
	return &info, nil
}

// objectKey addresses a mirrored file by its content hash: identical bytes
// land on the same key regardless of which snapshot they came from.
func (u *s3Mirror) objectKey(hash, name string) string {
	key := hash[:16] + "/" + sanitizeFileName(name)
	if u.prefix == "" {
		return key
	}
	return u.prefix + "/" + key
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFileName(name string) string {
	v := strings.TrimSpace(name)
	if v == "" {
		return "snapshot.db"
	}
	v = strings.ReplaceAll(v, " ", "-")
	v = fileNameSanitizer.ReplaceAllString(v, "-")
	v = strings.Trim(v, "-._")
	if v == "" {
		return "snapshot.db"
	}
	if len(v) > 120 {
		v = v[:120]
	}
	return v
}
