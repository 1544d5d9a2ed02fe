package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/solidity"
)

// Kind names a record collection.
type Kind string

const (
	KindContract    Kind = "contracts"
	KindSubcontract Kind = "subcontracts"
	KindFunction    Kind = "functions"
	KindStatement   Kind = "statements"
	KindGraph       Kind = "graphs"
	KindPoC         Kind = "pocs"
	KindCandidate   Kind = "candidates"
)

// Status 记录在扫描流程中的进度
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusDone      Status = "done"
	StatusValidated Status = "validated"
)

// member set names
const (
	SetParents   = "parents"
	SetAddresses = "addresses"
	SetGraphs    = "graphs"
)

// Flag names
const (
	FlagMatchingRunning = "matching_running"
)

var ErrNotFound = errors.New("record not found")

// Record is one stored document. Body holds the JSON encoding of the typed doc.
type Record struct {
	Kind   Kind
	Key    string
	Index  int64
	Lookup string
	Status Status
	Body   json.RawMessage
}

// Decode unmarshals the record body into v.
func (r *Record) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("%s/%s has empty body", r.Kind, r.Key)
	}
	return json.Unmarshal(r.Body, v)
}

// NewRecord encodes doc as the body of a new record.
func NewRecord(kind Kind, key string, doc any) (*Record, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", kind, key, err)
	}
	return &Record{Kind: kind, Key: key, Body: body}, nil
}

// Ref points at a parent record.
type Ref struct {
	Kind Kind
	Key  string
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.Key }

// ParseRef is the inverse of Ref.String.
func ParseRef(s string) (Ref, error) {
	kind, key, ok := strings.Cut(s, ":")
	if !ok || key == "" {
		return Ref{}, fmt.Errorf("malformed ref %q", s)
	}
	return Ref{Kind: Kind(kind), Key: key}, nil
}

// ContractKey is the identity key of a deployed contract.
func ContractKey(address, chain string) string {
	return strings.ToLower(address) + "_" + chain
}

type ContractDoc struct {
	Address      string          `json:"address"`
	Chain        string          `json:"chain"`
	Name         string          `json:"name"`
	Hash         string          `json:"hash"`
	Pragma       string          `json:"pragma,omitempty"`
	Subcontracts []string        `json:"subcontracts"`
	Functions    []string        `json:"functions"`
	Statements   []string        `json:"statements"`
	ABI          json.RawMessage `json:"abi,omitempty"`
}

type SubcontractDoc struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Bases      []string `json:"bases,omitempty"`
	StateVars  []string `json:"state_vars,omitempty"`
	Events     []string `json:"events,omitempty"`
	Functions  []string `json:"functions"`
	Normalized string   `json:"normalized"`
	Origin     string   `json:"origin"`
}

type FunctionDoc struct {
	Name       string           `json:"name"`
	Kind       string           `json:"kind"`
	Visibility string           `json:"visibility,omitempty"`
	Mutability string           `json:"mutability,omitempty"`
	HasBody    bool             `json:"has_body"`
	Inputs     []solidity.Param `json:"inputs,omitempty"`
	Outputs    []solidity.Param `json:"outputs,omitempty"`
	Calls      []string         `json:"calls,omitempty"`
	Statements []string         `json:"statements"`
	Normalized string           `json:"normalized"`
	Original   string           `json:"original"`
	Origin     string           `json:"origin"`
}

type StatementDoc struct {
	Kind       string   `json:"kind"`
	Normalized string   `json:"normalized"`
	Original   string   `json:"original"`
	Variables  []string `json:"variables,omitempty"`
	Origin     string   `json:"origin"`
}

// GraphDoc 存储函数流图的 node-link JSON
type GraphDoc struct {
	Graph json.RawMessage `json:"graph"`
}
