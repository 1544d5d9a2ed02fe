package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/solidity"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// PoCSource is what the synthesizer needs from a PoC file besides its trace.
type PoCSource struct {
	Pragma string
	// Main is the contract holding the test function.
	Main      string
	Helpers   []string
	Contracts []string
	// Addresses are the address literals of the file.
	Addresses []string
	// Variables maps variable names of the main contract to literal addresses.
	Variables map[string]string
}

var (
	// IERC20 WBNB = IERC20(0x...); address constant pool = 0x...;
	assignRe = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*=\s*(?:[A-Za-z_]\w*\s*\(\s*)*(0x[a-fA-F0-9]{40})\b`)

	errNoMainContract = errors.New("no contract with a test function")
)

func isTest(name string) bool { return strings.HasPrefix(name, "test") }

// ParsePoC splits a PoC file into its reusable parts.
func ParsePoC(src string) (*PoCSource, error) {
	unit, err := solidity.Parse(src, solidity.Options{})
	if err != nil {
		return nil, fmt.Errorf("parse poc: %w", err)
	}
	var main *solidity.Contract
	for _, c := range unit.Contracts {
		if c.Kind == "interface" {
			continue
		}
		for _, fn := range c.Functions {
			if isTest(fn.Name) {
				main = c
				break
			}
		}
		if main != nil {
			break
		}
	}
	if main == nil {
		return nil, errNoMainContract
	}

	out := &PoCSource{Pragma: unit.Pragma, Main: main.Name, Variables: make(map[string]string)}
	for _, c := range unit.Contracts {
		if c == main || c.Kind == "interface" {
			continue
		}
		out.Contracts = append(out.Contracts, c.Original)
	}
	for _, fn := range main.Functions {
		switch {
		case isTest(fn.Name), fn.Name == "setUp", fn.Name == "constructor", fn.Kind == "constructor":
		default:
			out.Helpers = append(out.Helpers, "    "+strings.TrimSpace(fn.Original))
		}
	}
	seen := make(map[string]bool)
	for _, a := range trace.AddressesIn(src) {
		if !seen[strings.ToLower(a)] {
			seen[strings.ToLower(a)] = true
			out.Addresses = append(out.Addresses, a)
		}
	}
	for _, m := range assignRe.FindAllStringSubmatch(main.Original, -1) {
		if _, ok := out.Variables[m[1]]; !ok {
			out.Variables[m[1]] = m[2]
		}
	}
	return out, nil
}

// VulnCodeHash is the hash matched against the corpus: the first function
// hash of code, else its first statement hash.
func VulnCodeHash(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", nil
	}
	hashes, err := solidity.FragmentHashes(code)
	if err != nil {
		return "", err
	}
	if len(hashes) == 0 {
		return "", nil
	}
	return hashes[0], nil
}
