package matching

import (
	"strings"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/synth"
)

// PoC is the part of a stored PoC record the matcher reads.
type PoC struct {
	Hash          string          `json:"hash"`
	FileName      string          `json:"file_name"`
	Chain         string          `json:"chain"`
	BlockNumber   uint64          `json:"block_number"`
	Vulnerability string          `json:"vulnerability"`
	VulnCodeHash  string          `json:"vuln_code_hash"`
	Signature     synth.Signature `json:"signature"`
}

// Candidate is a deployed contract that may be exploitable by a PoC.
type Candidate struct {
	Address       string        `json:"address"`
	Chain         string        `json:"chain"`
	BlockNumber   uint64        `json:"block_number"`
	PoCHash       string        `json:"poc_hash"`
	PoCFile       string        `json:"poc_template"`
	Vulnerability string        `json:"vulnerability"`
	ContractKey   string        `json:"address_hash"`
	Rationale     Rationale     `json:"rationale"`
	Status        corpus.Status `json:"status"`
}

// CandidateKey is the identity of a candidate: address_chain_pochash.
func CandidateKey(address, chain, pocHash string) string {
	return strings.ToLower(address) + "_" + chain + "_" + pocHash
}

func (c *Candidate) Key() string { return CandidateKey(c.Address, c.Chain, c.PoCHash) }

// splitContractKey is the inverse of corpus.ContractKey.
func splitContractKey(key string) (address, chain string) {
	address, chain, _ = strings.Cut(key, "_")
	return address, chain
}
