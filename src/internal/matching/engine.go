package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/solidity"
)

// Engine finds deployed contracts that contain the vulnerable code of a PoC
// and expose the interface its template needs.
type Engine struct {
	repo     corpus.Repository
	resolver explorer.Resolver
	tracker  *corpus.Tracker
}

// NewEngine returns an engine. resolver may be nil, in which case only the
// ABI stored with a contract is used.
func NewEngine(repo corpus.Repository, resolver explorer.Resolver, tracker *corpus.Tracker) *Engine {
	if tracker == nil {
		tracker = corpus.NewTracker(repo, 0)
	}
	return &Engine{repo: repo, resolver: resolver, tracker: tracker}
}

// LoadPoC reads a stored PoC by its template hash.
func (e *Engine) LoadPoC(ctx context.Context, hash string) (*PoC, error) {
	rec, err := e.repo.Get(ctx, corpus.KindPoC, hash)
	if err != nil {
		return nil, fmt.Errorf("load poc %s: %w", hash, err)
	}
	return decodePoC(rec)
}

func decodePoC(rec *corpus.Record) (*PoC, error) {
	var p PoC
	if err := rec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode poc %s: %w", rec.Key, err)
	}
	if p.Hash == "" {
		p.Hash = rec.Key
	}
	return &p, nil
}

// contractsFor walks parent references from a function or statement hash up
// to the contracts holding it.
func (e *Engine) contractsFor(ctx context.Context, hash string) ([]string, error) {
	var functions []string
	if _, err := e.repo.Get(ctx, corpus.KindFunction, hash); err == nil {
		functions = append(functions, hash)
	} else if !errors.Is(err, corpus.ErrNotFound) {
		return nil, err
	} else {
		refs, err := corpus.ParentRefs(ctx, e.repo, corpus.KindStatement, hash)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r.Kind == corpus.KindFunction {
				functions = append(functions, r.Key)
			}
		}
	}

	var contracts []string
	seen := make(map[string]bool)
	addContract := func(key string) {
		if !seen[key] {
			seen[key] = true
			contracts = append(contracts, key)
		}
	}
	for _, fn := range functions {
		refs, err := corpus.ParentRefs(ctx, e.repo, corpus.KindFunction, fn)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			switch r.Kind {
			case corpus.KindContract:
				addContract(r.Key)
			case corpus.KindSubcontract:
				parents, err := corpus.ParentRefs(ctx, e.repo, corpus.KindSubcontract, r.Key)
				if err != nil {
					return nil, err
				}
				for _, p := range parents {
					if p.Kind == corpus.KindContract {
						addContract(p.Key)
					}
				}
			}
		}
	}
	return contracts, nil
}

// contract is a matchable deployment.
type contract struct {
	key     string
	address string
	chain   string
	iface   []explorer.Entry
}

func (e *Engine) loadContract(ctx context.Context, key string, statuses []corpus.Status) (*contract, bool, error) {
	rec, err := e.repo.Get(ctx, corpus.KindContract, key)
	if errors.Is(err, corpus.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(statuses) > 0 && !hasStatus(statuses, rec.Status) {
		return nil, false, nil
	}
	var doc corpus.ContractDoc
	if err := rec.Decode(&doc); err != nil {
		return nil, false, err
	}
	c := &contract{key: key, address: doc.Address, chain: doc.Chain}
	if c.address == "" {
		c.address, c.chain = splitContractKey(key)
	}
	if len(doc.ABI) > 0 {
		if entries, err := explorer.ParseEntries(doc.ABI); err == nil {
			c.iface = entries
		} else {
			logger.Warn("stored abi of %s is invalid: %v", key, err)
		}
	}
	if len(c.iface) == 0 && e.resolver != nil {
		entries, err := e.resolver.Resolve(ctx, c.address, c.chain)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			logger.Warn("resolve abi of %s failed: %v", key, err)
		}
		c.iface = entries
	}
	return c, true, nil
}

func hasStatus(list []corpus.Status, s corpus.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// MatchPoC finds the contracts holding poc's vulnerable code, filters them
// by interface and stores the accepted ones. Only contracts in one of
// statuses are considered; no statuses means all.
func (e *Engine) MatchPoC(ctx context.Context, poc *PoC, statuses ...corpus.Status) ([]*Candidate, error) {
	if poc.VulnCodeHash == "" {
		return nil, nil
	}
	keys, err := e.contractsFor(ctx, poc.VulnCodeHash)
	if err != nil {
		return nil, err
	}
	var out []*Candidate
	for _, key := range keys {
		c, ok, err := e.loadContract(ctx, key, statuses)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cand := &Candidate{
			Address:       c.address,
			Chain:         c.chain,
			BlockNumber:   poc.BlockNumber,
			PoCHash:       poc.Hash,
			PoCFile:       poc.FileName,
			Vulnerability: poc.Vulnerability,
			ContractKey:   key,
			Status:        corpus.StatusPending,
		}
		if _, err := e.repo.Get(ctx, corpus.KindCandidate, cand.Key()); err == nil {
			continue
		} else if !errors.Is(err, corpus.ErrNotFound) {
			return nil, err
		}
		rationale, ok := FeatureFilter(poc.Signature, c.iface)
		if !ok {
			logger.Debug("%s rejected for %s", key, poc.FileName)
			continue
		}
		cand.Rationale = rationale
		if err := e.save(ctx, cand); err != nil {
			return nil, err
		}
		out = append(out, cand)
	}
	if len(out) > 0 {
		logger.Info("🎯 %s: %d new candidates", poc.FileName, len(out))
	}
	return out, nil
}

func (e *Engine) save(ctx context.Context, cand *Candidate) error {
	rec, err := corpus.NewRecord(corpus.KindCandidate, cand.Key(), cand)
	if err != nil {
		return err
	}
	rec.Lookup = cand.PoCHash
	rec.Status = cand.Status
	_, _, err = corpus.Create(ctx, e.repo, rec)
	return err
}

// Query selects candidates either by a stored PoC or by a raw code fragment.
type Query struct {
	PoCHash  string
	Fragment string
}

// FindCandidates answers q without storing anything. For a fragment the
// signature of a PoC with the same vulnerable hash is applied when one
// exists; otherwise the structural match alone is reported.
func (e *Engine) FindCandidates(ctx context.Context, q Query) ([]*Candidate, error) {
	switch {
	case q.PoCHash != "":
		poc, err := e.LoadPoC(ctx, q.PoCHash)
		if err != nil {
			return nil, err
		}
		return e.candidates(ctx, poc.VulnCodeHash, poc)
	case q.Fragment != "":
		hashes, err := solidity.FragmentHashes(q.Fragment)
		if err != nil {
			return nil, fmt.Errorf("parse fragment: %w", err)
		}
		var out []*Candidate
		seen := make(map[string]*Candidate)
		for _, h := range hashes {
			poc, err := e.pocByVulnHash(ctx, h)
			if err != nil {
				return nil, err
			}
			found, err := e.candidates(ctx, h, poc)
			if err != nil {
				return nil, err
			}
			for _, c := range found {
				// 同一合约被多个哈希命中时合并结构依据
				if prev, ok := seen[c.Key()]; ok {
					prev.Rationale[structuralKey] = appendUnique(prev.Rationale[structuralKey], h)
					continue
				}
				seen[c.Key()] = c
				out = append(out, c)
			}
		}
		return out, nil
	}
	return nil, errors.New("empty query")
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func (e *Engine) pocByVulnHash(ctx context.Context, hash string) (*PoC, error) {
	recs, err := e.repo.FindByLookup(ctx, corpus.KindPoC, hash)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return decodePoC(recs[0])
}

func (e *Engine) candidates(ctx context.Context, hash string, poc *PoC) ([]*Candidate, error) {
	keys, err := e.contractsFor(ctx, hash)
	if err != nil {
		return nil, err
	}
	var out []*Candidate
	for _, key := range keys {
		c, ok, err := e.loadContract(ctx, key, nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cand := &Candidate{Address: c.address, Chain: c.chain, ContractKey: key, Status: corpus.StatusPending}
		if poc == nil {
			cand.Rationale = Rationale{structuralKey: {hash}}
			out = append(out, cand)
			continue
		}
		rationale, ok := FeatureFilter(poc.Signature, c.iface)
		if !ok {
			continue
		}
		rationale[structuralKey] = []string{hash}
		cand.Rationale = rationale
		cand.BlockNumber = poc.BlockNumber
		cand.PoCHash = poc.Hash
		cand.PoCFile = poc.FileName
		cand.Vulnerability = poc.Vulnerability
		out = append(out, cand)
	}
	return out, nil
}

// codeHashes returns the function hashes of code followed by its statement
// hashes.
func codeHashes(code string) ([]string, error) {
	unit, err := solidity.Parse(code, solidity.Options{})
	if err != nil {
		return solidity.FragmentHashes(code)
	}
	var out, statements []string
	for _, fn := range unit.AllFunctions() {
		out = append(out, fn.Hash)
		for _, st := range fn.Statements {
			statements = append(statements, st.Hash)
		}
	}
	if len(out) == 0 {
		return solidity.FragmentHashes(code)
	}
	return append(out, statements...), nil
}

// TemplatesForCode returns the PoCs whose vulnerable code appears in code
// and whose signature fits iface.
func (e *Engine) TemplatesForCode(ctx context.Context, code string, iface []explorer.Entry) ([]*PoC, error) {
	hashes, err := codeHashes(code)
	if err != nil {
		return nil, fmt.Errorf("parse code: %w", err)
	}
	var out []*PoC
	seen := make(map[string]bool)
	for _, h := range hashes {
		recs, err := e.repo.FindByLookup(ctx, corpus.KindPoC, h)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if seen[rec.Key] {
				continue
			}
			poc, err := decodePoC(rec)
			if err != nil {
				return nil, err
			}
			if _, ok := FeatureFilter(poc.Signature, iface); ok {
				seen[rec.Key] = true
				out = append(out, poc)
			}
		}
	}
	return out, nil
}
