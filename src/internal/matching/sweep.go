package matching

import (
	"context"
	"fmt"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/logger"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Contracts  int
	PoCs       int
	Candidates []*Candidate
}

// locked runs fn while holding the matching_running flag.
func (e *Engine) locked(ctx context.Context, fn func() error) (err error) {
	if err := e.tracker.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		// release 不使用已取消的 ctx
		if rerr := e.tracker.Release(context.WithoutCancel(ctx)); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

// Unlock clears a matching_running flag left by a killed sweep.
func (e *Engine) Unlock(ctx context.Context) (bool, error) {
	return e.tracker.Unlock(ctx)
}

// SweepContracts matches newly ingested contracts against every stored
// PoC. Pending contracts are queued first; queued contracts left over from
// an interrupted sweep are matched again.
func (e *Engine) SweepContracts(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}
	err := e.locked(ctx, func() error {
		pending, err := e.repo.List(ctx, corpus.KindContract, corpus.StatusPending)
		if err != nil {
			return err
		}
		for _, rec := range pending {
			if err := e.repo.SetStatus(ctx, corpus.KindContract, rec.Key, corpus.StatusQueued); err != nil {
				return err
			}
		}
		queued, err := e.repo.List(ctx, corpus.KindContract, corpus.StatusQueued)
		if err != nil {
			return err
		}
		res.Contracts = len(queued)
		if len(queued) == 0 {
			return nil
		}

		pocs, err := e.repo.List(ctx, corpus.KindPoC, "")
		if err != nil {
			return err
		}
		for _, rec := range pocs {
			poc, err := decodePoC(rec)
			if err != nil {
				return err
			}
			found, err := e.MatchPoC(ctx, poc, corpus.StatusQueued)
			if err != nil {
				return fmt.Errorf("match %s: %w", poc.FileName, err)
			}
			res.PoCs++
			res.Candidates = append(res.Candidates, found...)
		}
		for _, rec := range queued {
			if err := e.repo.SetStatus(ctx, corpus.KindContract, rec.Key, corpus.StatusDone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("✅ contract sweep: %d contracts, %d pocs, %d candidates", res.Contracts, res.PoCs, len(res.Candidates))
	return res, nil
}

// SweepPoCs matches pending PoCs against contracts already swept.
func (e *Engine) SweepPoCs(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}
	err := e.locked(ctx, func() error {
		pocs, err := e.repo.List(ctx, corpus.KindPoC, corpus.StatusPending)
		if err != nil {
			return err
		}
		for _, rec := range pocs {
			poc, err := decodePoC(rec)
			if err != nil {
				return err
			}
			found, err := e.MatchPoC(ctx, poc, corpus.StatusDone)
			if err != nil {
				return fmt.Errorf("match %s: %w", poc.FileName, err)
			}
			res.PoCs++
			res.Candidates = append(res.Candidates, found...)
			if err := e.repo.SetStatus(ctx, corpus.KindPoC, rec.Key, corpus.StatusDone); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("✅ poc sweep: %d pocs, %d candidates", res.PoCs, len(res.Candidates))
	return res, nil
}

// Candidates lists stored candidates of a PoC.
func (e *Engine) Candidates(ctx context.Context, pocHash string) ([]*Candidate, error) {
	recs, err := e.repo.FindByLookup(ctx, corpus.KindCandidate, pocHash)
	if err != nil {
		return nil, err
	}
	out := make([]*Candidate, 0, len(recs))
	for _, rec := range recs {
		var c Candidate
		if err := rec.Decode(&c); err != nil {
			return nil, err
		}
		c.Status = rec.Status
		out = append(out, &c)
	}
	return out, nil
}
