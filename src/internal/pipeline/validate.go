package pipeline

import (
	"context"
	"fmt"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/matching"
	"github.com/VectorBits/pocshift/src/internal/synth"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// Validation is the outcome of replaying a template against a candidate.
type Validation struct {
	Candidate *matching.Candidate
	Source    string
	Passed    bool
	Output    string
}

// ValidateCandidate instantiates the PoC template for the candidate, runs it
// and marks the candidate validated when the test passes.
func (p *Pipeline) ValidateCandidate(ctx context.Context, cand *matching.Candidate) (*Validation, error) {
	rec, err := p.LoadPoC(ctx, cand.PoCHash)
	if err != nil {
		return nil, fmt.Errorf("load poc %s: %w", cand.PoCHash, err)
	}
	src := synth.Instantiate(rec.MigratableTemplate, cand.Address, cand.Chain, cand.BlockNumber)
	name := fmt.Sprintf("%s_%s_%s.sol", cand.Chain, cand.Address, rec.Hash)

	run, err := p.harness.Run(ctx, src, name)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", cand.Key(), err)
	}
	v := &Validation{Candidate: cand, Source: src, Output: run.Output}
	if _, err := trace.Extract(run.Output); err != nil {
		logger.Info("candidate %s did not reproduce: %v", cand.Key(), err)
		return v, nil
	}
	v.Passed = true
	if err := p.repo.SetStatus(ctx, corpus.KindCandidate, cand.Key(), corpus.StatusValidated); err != nil {
		return nil, err
	}
	cand.Status = corpus.StatusValidated
	logger.Info("🏆 candidate %s reproduced %s", cand.Key(), rec.FileName)
	return v, nil
}

// ValidateAll validates every stored candidate of a PoC that is not yet validated.
func (p *Pipeline) ValidateAll(ctx context.Context, engine *matching.Engine, pocHash string) ([]*Validation, error) {
	cands, err := engine.Candidates(ctx, pocHash)
	if err != nil {
		return nil, err
	}
	var out []*Validation
	for _, c := range cands {
		if c.Status == corpus.StatusValidated {
			continue
		}
		v, err := p.ValidateCandidate(ctx, c)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
