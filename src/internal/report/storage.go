package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Storage interface {
	Save(report *Report, content string) (string, error)
}

type FileStorage struct {
	OutputDir string
}

func NewFileStorage(outputDir string) *FileStorage {
	return &FileStorage{
		OutputDir: outputDir,
	}
}

func sanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	out := b.String()
	out = strings.Trim(out, "._-")
	if out == "" {
		return "unknown"
	}
	return out
}

// writeAtomic writes content to path through a temp file in the same dir.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStorage) Save(report *Report, content string) (string, error) {
	if s.OutputDir == "" {
		s.OutputDir = "reports"
	}
	// 生成文件名
	timestamp := time.Now().UnixNano()
	mode := sanitizeFilenameComponent(report.Mode)
	reportPath := filepath.Join(s.OutputDir, fmt.Sprintf("pocshift_%s_%d.md", mode, timestamp))
	if err := writeAtomic(reportPath, []byte(content)); err != nil {
		return "", err
	}
	return reportPath, nil
}

// ArtifactStore keeps generated templates next to their signature documents.
type ArtifactStore struct {
	Dir string
}

func NewArtifactStore(dir string) *ArtifactStore {
	if dir == "" {
		dir = "output"
	}
	return &ArtifactStore{Dir: dir}
}

// Save writes <name>.sol and <name>.json and returns both paths.
func (s *ArtifactStore) Save(name, template string, doc any) (string, string, error) {
	base := sanitizeFilenameComponent(strings.TrimSuffix(filepath.Base(name), ".sol"))
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", "", fmt.Errorf("encode %s: %w", base, err)
	}
	solPath := filepath.Join(s.Dir, base+".sol")
	jsonPath := filepath.Join(s.Dir, base+".json")
	if err := writeAtomic(solPath, []byte(template)); err != nil {
		return "", "", err
	}
	if err := writeAtomic(jsonPath, data); err != nil {
		return "", "", err
	}
	return solPath, jsonPath, nil
}
