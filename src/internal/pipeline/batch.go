package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one PoC in a batch; exactly one of Record and Err is set.
type Outcome struct {
	FileName string
	Record   *PoCRecord
	Err      error
}

type BatchReport struct {
	Outcomes []Outcome
}

func (r *BatchReport) Migrated() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

func (r *BatchReport) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// IngestBatch migrates inputs concurrently. A failed PoC never stops the
// others; outcomes keep the input order.
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []PoCInput) (*BatchReport, error) {
	outcomes := make([]Outcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			outcomes[i].FileName = filepath.Base(in.FileName)
			rec, err := p.IngestPoC(gctx, in)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warn("❌ %v", err)
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Record = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &BatchReport{Outcomes: outcomes}, err
	}
	rep := &BatchReport{Outcomes: outcomes}
	logger.Info("📦 batch done: %d migrated, %d failed", rep.Migrated(), len(rep.Failed()))
	return rep, nil
}

// LoadInputs pairs every .sol file under dir with its triage entry. Files
// without an entry are skipped with a warning.
func LoadInputs(dir string, triage map[string]Triage) ([]PoCInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read poc dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sol") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var inputs []PoCInput
	for _, name := range names {
		tri, ok := triage[name]
		if !ok {
			logger.Warn("no triage entry for %s, skipped", name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, PoCInput{Source: string(data), FileName: name, Triage: tri})
	}
	return inputs, nil
}
