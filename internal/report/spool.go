package report

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	Session Session  `json:"session"`
	Records []Record `json:"records"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("CDS_BENCH_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// Spool keeps the records of a session and writes them as one artifact on
// Close, including a partial session after a failed sweep.
type Spool struct {
	dir     string
	session Session
	records []Record
	path    string
}

func NewSpool(dir string, session Session) *Spool {
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	return &Spool{dir: dir, session: session}
}

func (s *Spool) Emit(r Record) error {
	s.records = append(s.records, r)
	return nil
}

func (s *Spool) Close() error {
	if len(s.records) == 0 {
		return nil
	}
	path, err := WriteSpoolArtifact(s.dir, &SpoolArtifact{
		Version:   1,
		CreatedAt: time.Now(),
		Session:   s.session,
		Records:   s.records,
	})
	if err != nil {
		return fmt.Errorf("failed to write spool artifact: %w", err)
	}
	s.path = path
	return nil
}

// Path is the artifact written by Close, empty before.
func (s *Spool) Path() string {
	return s.path
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.Session.Checksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"cds_%s_%s_%s.json.gz",
		sanitize(artifact.Session.Program),
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

func sanitize(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
