package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/VectorBits/pocshift/src/internal/logger"
)

const DefaultTimeout = time.Hour

var (
	ErrTimeout       = errors.New("harness timed out")
	ErrForgeNotFound = errors.New("forge not found in PATH, please install Foundry")
)

// Result is the output of one test run.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Passed reports whether forge exited cleanly.
func (r *Result) Passed() bool { return r.ExitCode == 0 }

// Harness runs a Solidity test file and returns its verbose output.
type Harness interface {
	Run(ctx context.Context, source, name string) (*Result, error)
}

type Config struct {
	ForgePath  string
	ProjectDir string
	Timeout    time.Duration
	// Verbosity is the forge -v flag; call traces need -vvvvv.
	Verbosity string
}

// Forge runs tests inside a Foundry project.
type Forge struct {
	cfg Config
}

func NewForge(cfg Config) (*Forge, error) {
	if cfg.ForgePath == "" {
		cfg.ForgePath = "forge"
	}
	if _, err := exec.LookPath(cfg.ForgePath); err != nil {
		return nil, ErrForgeNotFound
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Verbosity == "" {
		cfg.Verbosity = "-vvvvv"
	}
	return &Forge{cfg: cfg}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// FileName turns a PoC name into a test file name.
func FileName(name string) string {
	base := unsafeName.ReplaceAllString(filepath.Base(name), "_")
	if !strings.HasSuffix(base, ".sol") {
		base += ".sol"
	}
	return base
}

// Run writes source into the project's test directory, runs it and removes
// it again. A failing test is not an error; its output is returned.
func (f *Forge) Run(ctx context.Context, source, name string) (*Result, error) {
	dir := filepath.Join(f.cfg.ProjectDir, "test", "pocshift")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create test dir: %w", err)
	}
	path := filepath.Join(dir, FileName(name))
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	rel, err := filepath.Rel(f.cfg.ProjectDir, path)
	if err != nil {
		rel = path
	}
	cmd := exec.CommandContext(ctx, f.cfg.ForgePath, "test", "--contracts", rel, f.cfg.Verbosity)
	cmd.Dir = f.cfg.ProjectDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	res := &Result{Output: stdout.String(), Duration: time.Since(start)}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s after %s: %w", name, f.cfg.Timeout, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("forge test %s: %w", name, err)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.Output == "" {
			res.Output = truncate(stderr.String(), 4096)
		}
	}
	logger.InfoFileOnly("forge test %s finished in %s (exit %d)", name, res.Duration.Round(time.Millisecond), res.ExitCode)
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "...(truncated)"
	}
	return s
}
