package solidity

import "regexp"

type TokenType int

const (
	EOF TokenType = iota
	Identifier
	Keyword
	StringLiteral
	DecimalNumber
	HexNumber
	BooleanLiteral
	Punct
	Whitespace
	Comment
)

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "EOF"
	case Identifier:
		return "Identifier"
	case Keyword:
		return "Keyword"
	case StringLiteral:
		return "StringLiteral"
	case DecimalNumber:
		return "DecimalNumber"
	case HexNumber:
		return "HexNumber"
	case BooleanLiteral:
		return "BooleanLiteral"
	case Punct:
		return "Punct"
	case Whitespace:
		return "Whitespace"
	case Comment:
		return "Comment"
	}
	return "Unknown"
}

// Channel separates tokens that take part in normalization from the ones
// that only survive in the original text.
type Channel int

const (
	DefaultChannel Channel = iota
	HiddenChannel
)

type Token struct {
	Type    TokenType
	Text    string
	Start   int // byte offset
	End     int
	Line    int
	Channel Channel
}

func (t Token) Is(text string) bool {
	return t.Type != StringLiteral && t.Text == text
}

var keywords = map[string]bool{}

var elementaryTypeRe = regexp.MustCompile(`^(address|bool|string|byte|bytes([1-9]|[12][0-9]|3[0-2])?|u?int(8|16|24|32|40|48|56|64|72|80|88|96|104|112|120|128|136|144|152|160|168|176|184|192|200|208|216|224|232|240|248|256)?|u?fixed[0-9x]*)$`)

func init() {
	for _, kw := range []string{
		"pragma", "import", "using", "as", "is", "contract", "interface", "library",
		"abstract", "function", "modifier", "event", "struct", "enum", "mapping",
		"returns", "return", "if", "else", "for", "while", "do", "break", "continue", "throw",
		"emit", "try", "catch", "new", "delete", "public", "private", "internal",
		"external", "pure", "view", "payable", "constant", "immutable", "override", "virtual",
		"memory", "storage", "calldata", "indexed", "anonymous", "constructor", "fallback",
		"receive", "assembly", "unchecked", "type", "var", "wei", "gwei", "ether",
		"szabo", "finney", "seconds", "minutes", "hours", "days", "weeks", "years",
	} {
		keywords[kw] = true
	}
}

// IsElementaryType reports whether name is a built-in value type.
func IsElementaryType(name string) bool {
	return elementaryTypeRe.MatchString(name)
}

func isKeyword(word string) bool {
	return keywords[word] || IsElementaryType(word)
}
