package solidity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IDLength is the number of hex characters of a unit hash used as its identifier.
const IDLength = 12

// Identifiers that carry execution context and survive normalization.
var reservedIdentifiers = map[string]bool{
	"msg":    true,
	"sender": true,
	"max":    true,
	"this":   true,
	"tx":     true,
	"origin": true,
}

func placeholder(t Token) string {
	switch t.Type {
	case StringLiteral:
		return "STRING"
	case DecimalNumber:
		return "NUMBER"
	case HexNumber:
		return "HEX"
	case BooleanLiteral:
		return "BOOL"
	case Identifier:
		if reservedIdentifiers[t.Text] {
			return t.Text
		}
		return "VAR"
	}
	return t.Text
}

// Normalize returns the placeholder form of the tokens covered by sp.
func (f *SourceFile) Normalize(sp Span) string {
	var b strings.Builder
	for i := sp.From; i < sp.To && i < len(f.Tokens); i++ {
		t := f.Tokens[i]
		if t.Channel != DefaultChannel || t.Type == EOF {
			continue
		}
		b.WriteString(placeholder(t))
	}
	return b.String()
}

// NormalizeText normalizes a free-standing fragment of source.
func NormalizeText(src string) (string, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return "", err
	}
	f := &SourceFile{Src: src, Tokens: tokens}
	return f.Normalize(Span{From: 0, To: len(tokens)}), nil
}

func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortID truncates a hash to its identifier prefix.
func ShortID(hash string) string {
	if len(hash) <= IDLength {
		return hash
	}
	return hash[:IDLength]
}

// compactFragment drops whitespace and comments so that formatting differences
// do not affect fragment comparison.
func compactFragment(src string) string {
	tokens, err := Tokenize(src)
	if err != nil {
		return strings.Join(strings.Fields(src), "")
	}
	var b strings.Builder
	for _, t := range tokens {
		if t.Channel == DefaultChannel {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func fragmentSet(fragments []string) map[string]bool {
	set := make(map[string]bool)
	for _, frag := range fragments {
		c := compactFragment(frag)
		if c == "" {
			continue
		}
		set[c] = true
		set[strings.TrimSuffix(c, ";")] = true
	}
	return set
}
