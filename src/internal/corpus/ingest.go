package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/flowgraph"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/solc"
	"github.com/VectorBits/pocshift/src/internal/solidity"
)

// Identity names a deployed contract.
type Identity struct {
	Address string
	Chain   string
}

func (id Identity) Key() string { return ContractKey(id.Address, id.Chain) }

// IdentityFromPath reads an identity from a "<address>_<chain>" directory or file name.
func IdentityFromPath(p string) (Identity, error) {
	base := strings.TrimSuffix(filepath.Base(filepath.Clean(p)), ".sol")
	addr, chain, ok := strings.Cut(base, "_")
	if !ok || addr == "" || chain == "" {
		return Identity{}, fmt.Errorf("path %q is not <address>_<chain>", p)
	}
	return Identity{Address: strings.Trim(addr, "' "), Chain: strings.Trim(chain, "' ")}, nil
}

// ABISource fetches the raw ABI JSON of a deployed contract.
type ABISource interface {
	RawABI(ctx context.Context, address, chain string) (json.RawMessage, error)
}

type IngestResult struct {
	Key        string
	Created    bool
	Contracts  []string
	Functions  []string
	Statements []string
	Graphs     []string
}

type Ingester struct {
	repo Repository
	abis ABISource
}

// NewIngester returns an ingester; abis may be nil.
func NewIngester(repo Repository, abis ABISource) *Ingester {
	return &Ingester{repo: repo, abis: abis}
}

// IngestSource parses text and stores it under id. A contract already in the
// corpus only gains the address.
func (in *Ingester) IngestSource(ctx context.Context, text string, id Identity) (*IngestResult, error) {
	key := id.Key()
	res := &IngestResult{Key: key}

	if _, err := in.repo.Get(ctx, KindContract, key); err == nil {
		return res, in.repo.UnionInsert(ctx, KindContract, key, SetAddresses, strings.ToLower(id.Address))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	source, err := solc.Flatten(text)
	if err != nil {
		return nil, fmt.Errorf("flatten %s: %w", key, err)
	}
	unit, err := solidity.Parse(source, solidity.Options{})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}

	w := &writer{repo: in.repo, res: res, statements: make(map[string]bool)}
	parent := Ref{Kind: KindContract, Key: key}
	doc := ContractDoc{
		Address: strings.ToLower(id.Address),
		Chain:   id.Chain,
		Pragma:  unit.Pragma,
	}

	var hashes []string
	for _, c := range unit.Contracts {
		if err := w.subcontract(ctx, unit.File, c, parent); err != nil {
			return nil, err
		}
		doc.Subcontracts = append(doc.Subcontracts, c.Hash)
		hashes = append(hashes, c.Hash)
		if c.Kind == "contract" && !c.Abstract {
			doc.Name = c.Name
		}
	}
	for _, fn := range unit.Functions {
		if err := w.function(ctx, fn, flowgraph.BuildFunction(unit.File, fn.Decl), parent); err != nil {
			return nil, err
		}
		doc.Functions = append(doc.Functions, fn.Hash)
		hashes = append(hashes, fn.Hash)
	}
	doc.Hash = solidity.HashString(strings.Join(hashes, ""))
	for h := range w.statements {
		doc.Statements = append(doc.Statements, h)
	}
	sort.Strings(doc.Statements)

	if in.abis != nil {
		abi, err := in.abis.RawABI(ctx, id.Address, id.Chain)
		if err != nil {
			logger.Warn("no abi for %s: %v", key, err)
		} else {
			doc.ABI = abi
		}
	}

	rec, err := NewRecord(KindContract, key, doc)
	if err != nil {
		return nil, err
	}
	rec.Lookup = doc.Hash
	if _, res.Created, err = Create(ctx, in.repo, rec); err != nil {
		return nil, err
	}
	if err := in.repo.UnionInsert(ctx, KindContract, key, SetAddresses, doc.Address); err != nil {
		return nil, err
	}
	logger.InfoFileOnly("ingested %s: %d contracts, %d functions, %d statements",
		key, len(res.Contracts), len(res.Functions), len(res.Statements))
	return res, nil
}

// IngestDirectory concatenates the .sol files of a project directory, preferring
// its contracts/ subdirectory, and ingests the result.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, id Identity) (*IngestResult, error) {
	if id.Address == "" {
		parsed, err := IdentityFromPath(dir)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	root := dir
	if st, err := os.Stat(filepath.Join(dir, "contracts")); err == nil && st.IsDir() {
		root = filepath.Join(dir, "contracts")
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sol") {
			return nil
		}
		if rel, err := filepath.Rel(root, p); err == nil && solc.IsToolingPath(rel) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .sol files under %s", root)
	}
	sort.Strings(files)

	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return in.IngestSource(ctx, b.String(), id)
}

type writer struct {
	repo       Repository
	res        *IngestResult
	statements map[string]bool
}

func (w *writer) subcontract(ctx context.Context, f *solidity.SourceFile, c *solidity.Contract, parent Ref) error {
	ref := Ref{Kind: KindSubcontract, Key: c.Hash}
	doc := SubcontractDoc{
		Name:       c.Name,
		Kind:       c.Kind,
		Bases:      c.Bases,
		StateVars:  c.StateVars,
		Events:     c.Events,
		Normalized: c.Normalized,
		Origin:     parent.String(),
	}
	for _, fn := range c.Functions {
		doc.Functions = append(doc.Functions, fn.Hash)
	}
	w.res.Contracts = append(w.res.Contracts, c.Hash)

	// 子合约记录最后写入，存在即表示其函数已完整落库
	_, err := w.repo.Get(ctx, KindSubcontract, c.Hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil {
		for _, fn := range c.Functions {
			for _, st := range fn.Statements {
				w.statements[st.Hash] = true
			}
		}
		return AddParent(ctx, w.repo, KindSubcontract, c.Hash, parent)
	}

	graphs := flowgraph.BuildContract(f, c.Decl)
	for i, fn := range c.Functions {
		if err := w.function(ctx, fn, graphs[i], ref); err != nil {
			return err
		}
	}
	rec, err := NewRecord(KindSubcontract, c.Hash, doc)
	if err != nil {
		return err
	}
	if _, _, err := Create(ctx, w.repo, rec); err != nil {
		return err
	}
	return AddParent(ctx, w.repo, KindSubcontract, c.Hash, parent)
}

func (w *writer) function(ctx context.Context, fn *solidity.Function, g *flowgraph.Graph, parent Ref) error {
	ref := Ref{Kind: KindFunction, Key: fn.Hash}
	w.res.Functions = append(w.res.Functions, fn.Hash)

	_, err := w.repo.Get(ctx, KindFunction, fn.Hash)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if !exists {
		doc := FunctionDoc{
			Name:       fn.Name,
			Kind:       fn.Kind,
			Visibility: fn.Visibility,
			Mutability: fn.Mutability,
			HasBody:    fn.HasBody,
			Inputs:     fn.Inputs,
			Outputs:    fn.Outputs,
			Calls:      fn.Calls,
			Normalized: fn.Normalized,
			Original:   fn.Original,
			Origin:     parent.String(),
		}
		for _, st := range fn.Statements {
			if err := w.statement(ctx, st, ref); err != nil {
				return err
			}
			doc.Statements = append(doc.Statements, st.Hash)
		}
		rec, err := NewRecord(KindFunction, fn.Hash, doc)
		if err != nil {
			return err
		}
		if _, _, err := Create(ctx, w.repo, rec); err != nil {
			return err
		}
	} else {
		for _, st := range fn.Statements {
			w.statements[st.Hash] = true
		}
	}

	if err := AddParent(ctx, w.repo, KindFunction, fn.Hash, parent); err != nil {
		return err
	}
	if fn.HasBody && g != nil {
		gh, err := w.graph(ctx, g, ref, parent)
		if err != nil {
			return err
		}
		return w.repo.UnionInsert(ctx, KindFunction, fn.Hash, SetGraphs, gh)
	}
	return nil
}

func (w *writer) statement(ctx context.Context, st *solidity.Statement, parent Ref) error {
	w.statements[st.Hash] = true
	w.res.Statements = append(w.res.Statements, st.Hash)
	rec, err := NewRecord(KindStatement, st.Hash, StatementDoc{
		Kind:       st.Kind,
		Normalized: st.Normalized,
		Original:   st.Original,
		Variables:  st.Variables,
		Origin:     parent.String(),
	})
	if err != nil {
		return err
	}
	if _, _, err := Create(ctx, w.repo, rec); err != nil {
		return err
	}
	return AddParent(ctx, w.repo, KindStatement, st.Hash, parent)
}

// graph stores g keyed by its structural hash; both the function and the
// function's own parent are recorded as parents.
func (w *writer) graph(ctx context.Context, g *flowgraph.Graph, fn, owner Ref) (string, error) {
	hash := g.Hash(flowgraph.DefaultIterations)
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	rec, err := NewRecord(KindGraph, hash, GraphDoc{Graph: data})
	if err != nil {
		return "", err
	}
	if _, _, err := Create(ctx, w.repo, rec); err != nil {
		return "", err
	}
	if err := w.repo.UnionInsert(ctx, KindGraph, hash, SetParents, fn.String(), owner.String()); err != nil {
		return "", err
	}
	w.res.Graphs = append(w.res.Graphs, hash)
	return hash, nil
}
