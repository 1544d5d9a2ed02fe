package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/harness"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/report"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/solidity"
	"github.com/VectorBits/pocshift/src/internal/synth"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// ErrNotDecomposable marks a PoC that cannot be migrated: its test does not
// run, its trace is missing or its entry point cannot be located.
var ErrNotDecomposable = errors.New("poc is not decomposable")

type EntryPoint struct {
	Address  string `json:"address"`
	Function string `json:"function"`
}

// PoCRecord is the stored form of a migrated PoC.
type PoCRecord struct {
	Hash               string                      `json:"hash"`
	FileName           string                      `json:"file_name"`
	Address            string                      `json:"address"`
	Chain              string                      `json:"chain"`
	BlockNumber        uint64                      `json:"block_number"`
	Lost               string                      `json:"lost,omitempty"`
	Vulnerability      string                      `json:"vulnerability"`
	Reference          string                      `json:"link_reference,omitempty"`
	EntryPoint         EntryPoint                  `json:"entry_point"`
	VulnFunction       string                      `json:"vuln_function,omitempty"`
	VulnCode           string                      `json:"vuln_code,omitempty"`
	VulnCodeHash       string                      `json:"vuln_code_hash"`
	MigratableTemplate string                      `json:"migratable_template"`
	Signature          synth.Signature             `json:"signature"`
	ABISummary         map[string][]explorer.Entry `json:"abi_summary"`
	Status             corpus.Status               `json:"status,omitempty"`
}

type PoCInput struct {
	Source   string
	FileName string
	Triage   Triage
}

type Config struct {
	Workers int
}

// Pipeline turns exploit PoCs into migratable templates.
type Pipeline struct {
	repo       corpus.Repository
	harness    harness.Harness
	resolver   explorer.Resolver
	classifier *roles.Classifier
	store      *report.ArtifactStore
	cfg        Config
}

// New builds a pipeline. resolver and store may be nil.
func New(repo corpus.Repository, h harness.Harness, resolver explorer.Resolver, classifier *roles.Classifier, store *report.ArtifactStore, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Pipeline{repo: repo, harness: h, resolver: resolver, classifier: classifier, store: store, cfg: cfg}
}

func notDecomposable(name string, err error) error {
	return fmt.Errorf("%s: %w: %w", name, ErrNotDecomposable, err)
}

// IngestPoC runs, decomposes, classifies and synthesizes one PoC and stores
// the result once per template hash.
func (p *Pipeline) IngestPoC(ctx context.Context, in PoCInput) (*PoCRecord, error) {
	name := filepath.Base(in.FileName)
	tri := in.Triage
	src, err := ParsePoC(in.Source)
	if err != nil {
		return nil, notDecomposable(name, err)
	}

	logger.Info("🔬 running %s", name)
	run, err := p.harness.Run(ctx, in.Source, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, notDecomposable(name, err)
	}
	tree, err := trace.ParseRaw(run.Output)
	if err != nil {
		return nil, notDecomposable(name, err)
	}
	entry := trace.EntryPoint{Address: tri.EntryAddress, Function: tri.EntryFunction}
	d, err := trace.Decompose(tree, entry)
	if err != nil {
		return nil, notDecomposable(name, err)
	}
	simplified := trace.Simplify(d.AttackLogic)
	logger.Debug("%s: %d precondition, %d attack (%d simplified), %d postcondition",
		name, len(d.Precondition), len(d.AttackLogic), len(simplified), len(d.Postcondition))

	target := tri.VulnerableAddress
	if target == "" {
		target = tri.EntryAddress
	}
	targetABI := p.resolve(ctx, target, tri.Chain)

	cls, err := p.classifier.Classify(ctx, roles.Input{
		Attack:            simplified,
		Precondition:      d.Precondition,
		VulnerableAddress: tri.VulnerableAddress,
		EntryPoint:        entry,
		VulnFunction:      tri.VulnFunction,
		SourceAddresses:   src.Addresses,
		Chain:             tri.Chain,
		Block:             tri.BlockNumber,
		TargetABI:         targetABI,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: classify: %w", name, err)
	}

	abis := make(map[string][]explorer.Entry)
	for _, a := range cls.Assignments {
		switch a.Kind() {
		case roles.KindTarget:
			if a.Address == roles.Canonical(target) && targetABI != nil {
				abis[a.Address] = targetABI
				continue
			}
		case roles.KindRead, roles.KindLeft:
		default:
			continue
		}
		if entries := p.resolve(ctx, a.Address, tri.Chain); entries != nil {
			abis[a.Address] = entries
		}
	}

	res, err := synth.Synthesize(synth.Input{
		Decomposition:  d,
		Simplified:     simplified,
		Classification: cls,
		ABIs:           abis,
		Pragma:         src.Pragma,
		Helpers:        src.Helpers,
		Contracts:      src.Contracts,
		Variables:      src.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	vulnHash, err := VulnCodeHash(tri.VulnerableCode)
	if err != nil {
		logger.Warn("%s: vulnerable code does not parse: %v", name, err)
	}
	rec := &PoCRecord{
		Hash:               solidity.HashString(res.Template),
		FileName:           name,
		Address:            tri.VulnerableAddress,
		Chain:              tri.Chain,
		BlockNumber:        tri.BlockNumber,
		Lost:               tri.Lost,
		Vulnerability:      tri.Vulnerability,
		Reference:          tri.Reference,
		EntryPoint:         EntryPoint{Address: tri.EntryAddress, Function: tri.EntryFunction},
		VulnFunction:       tri.VulnFunction,
		VulnCode:           tri.VulnerableCode,
		VulnCodeHash:       vulnHash,
		MigratableTemplate: res.Template,
		Signature:          res.Signature,
		ABISummary:         abis,
	}
	if err := p.persist(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: persist: %w", name, err)
	}
	if p.store != nil {
		if _, _, err := p.store.Save(name, res.Template, rec); err != nil {
			logger.Warn("%s: save artifacts: %v", name, err)
		}
	}
	logger.Info("✅ %s migrated (%d roles)", name, len(cls.Assignments))
	return rec, nil
}

func (p *Pipeline) resolve(ctx context.Context, address, chain string) []explorer.Entry {
	if p.resolver == nil || address == "" {
		return nil
	}
	entries, err := p.resolver.Resolve(ctx, address, chain)
	if err != nil {
		logger.Warn("abi of %s on %s unavailable: %v", address, chain, err)
		return nil
	}
	return entries
}

// persist creates the record once. A template that already exists only
// takes the new vulnerable-code hash.
func (p *Pipeline) persist(ctx context.Context, rec *PoCRecord) error {
	r, err := corpus.NewRecord(corpus.KindPoC, rec.Hash, rec)
	if err != nil {
		return err
	}
	r.Lookup = rec.VulnCodeHash
	stored, created, err := corpus.Create(ctx, p.repo, r)
	if err != nil {
		return err
	}
	rec.Status = stored.Status
	if created || rec.VulnCodeHash == "" {
		return nil
	}

	var existing PoCRecord
	if err := stored.Decode(&existing); err != nil {
		return err
	}
	if existing.VulnCodeHash == rec.VulnCodeHash {
		return nil
	}
	existing.VulnCodeHash = rec.VulnCodeHash
	updated, err := corpus.NewRecord(corpus.KindPoC, rec.Hash, existing)
	if err != nil {
		return err
	}
	if err := p.repo.Replace(ctx, updated); err != nil {
		return err
	}
	return p.repo.SetLookup(ctx, corpus.KindPoC, rec.Hash, rec.VulnCodeHash)
}

// LoadPoC reads a stored PoC record.
func (p *Pipeline) LoadPoC(ctx context.Context, hash string) (*PoCRecord, error) {
	return LoadRecord(ctx, p.repo, hash)
}

func LoadRecord(ctx context.Context, repo corpus.Repository, hash string) (*PoCRecord, error) {
	r, err := repo.Get(ctx, corpus.KindPoC, hash)
	if err != nil {
		return nil, err
	}
	var rec PoCRecord
	if err := r.Decode(&rec); err != nil {
		return nil, err
	}
	rec.Status = r.Status
	return &rec, nil
}

// Summary converts a record into its report row.
func (rec *PoCRecord) Summary() report.PoCResult {
	counts := make(map[string]int)
	for kind, entries := range rec.Signature {
		if len(entries) > 0 {
			counts[string(kind)] = len(entries)
		}
	}
	return report.PoCResult{
		FileName:      rec.FileName,
		Vulnerability: rec.Vulnerability,
		Hash:          rec.Hash,
		Template:      rec.MigratableTemplate,
		Roles:         counts,
	}
}
