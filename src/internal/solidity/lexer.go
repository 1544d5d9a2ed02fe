package solidity

import (
	"fmt"
	"strings"
)

// 按最长匹配排列
var punctuators = []string{
	">>>=", "...", ">>>", ">>=", "<<=", "**=",
	"==", "!=", "<=", ">=", "&&", "||", "++", "--", "+=", "-=", "*=", "/=", "%=",
	"|=", "&=", "^=", "<<", ">>", "**", "=>", "->", ":=",
}

// Tokenize splits Solidity source into tokens. Whitespace and comments are
// kept on the hidden channel so that joining every token text reproduces src.
func Tokenize(src string) ([]Token, error) {
	lx := &lexer{src: src, line: 1}
	for lx.pos < len(lx.src) {
		if err := lx.next(); err != nil {
			return nil, err
		}
	}
	lx.tokens = append(lx.tokens, Token{Type: EOF, Start: len(src), End: len(src), Line: lx.line})
	return lx.tokens, nil
}

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []Token
}

func (lx *lexer) emit(typ TokenType, start int, ch Channel) {
	text := lx.src[start:lx.pos]
	lx.tokens = append(lx.tokens, Token{
		Type:    typ,
		Text:    text,
		Start:   start,
		End:     lx.pos,
		Line:    lx.line,
		Channel: ch,
	})
	lx.line += strings.Count(text, "\n")
}

func (lx *lexer) peek(off int) byte {
	if lx.pos+off < len(lx.src) {
		return lx.src[lx.pos+off]
	}
	return 0
}

func (lx *lexer) next() error {
	start := lx.pos
	c := lx.src[lx.pos]

	switch {
	case isSpace(c):
		for lx.pos < len(lx.src) && isSpace(lx.src[lx.pos]) {
			lx.pos++
		}
		lx.emit(Whitespace, start, HiddenChannel)
		return nil

	case c == '/' && lx.peek(1) == '/':
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
			lx.pos++
		}
		lx.emit(Comment, start, HiddenChannel)
		return nil

	case c == '/' && lx.peek(1) == '*':
		end := strings.Index(lx.src[lx.pos+2:], "*/")
		if end < 0 {
			return fmt.Errorf("line %d: unterminated block comment", lx.line)
		}
		lx.pos += end + 4
		lx.emit(Comment, start, HiddenChannel)
		return nil

	case c == '"' || c == '\'':
		if err := lx.quoted(c); err != nil {
			return err
		}
		lx.emit(StringLiteral, start, DefaultChannel)
		return nil

	case isDigit(c) || (c == '.' && isDigit(lx.peek(1))):
		if c == '0' && (lx.peek(1) == 'x' || lx.peek(1) == 'X') {
			lx.pos += 2
			for lx.pos < len(lx.src) && (isHex(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
				lx.pos++
			}
			lx.emit(HexNumber, start, DefaultChannel)
			return nil
		}
		lx.decimal()
		lx.emit(DecimalNumber, start, DefaultChannel)
		return nil

	case isIdentStart(c):
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.pos++
		}
		word := lx.src[start:lx.pos]
		// hex"..." / unicode"..."
		if (word == "hex" || word == "unicode") && lx.pos < len(lx.src) && (lx.src[lx.pos] == '"' || lx.src[lx.pos] == '\'') {
			if err := lx.quoted(lx.src[lx.pos]); err != nil {
				return err
			}
			lx.emit(StringLiteral, start, DefaultChannel)
			return nil
		}
		switch {
		case word == "true" || word == "false":
			lx.emit(BooleanLiteral, start, DefaultChannel)
		case isKeyword(word):
			lx.emit(Keyword, start, DefaultChannel)
		default:
			lx.emit(Identifier, start, DefaultChannel)
		}
		return nil
	}

	rest := lx.src[lx.pos:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			lx.pos += len(p)
			lx.emit(Punct, start, DefaultChannel)
			return nil
		}
	}
	lx.pos++
	lx.emit(Punct, start, DefaultChannel)
	return nil
}

func (lx *lexer) quoted(q byte) error {
	line := lx.line
	lx.pos++
	for lx.pos < len(lx.src) {
		switch lx.src[lx.pos] {
		case '\\':
			lx.pos += 2
			continue
		case '\n':
			return fmt.Errorf("line %d: newline in string literal", line)
		case q:
			lx.pos++
			return nil
		}
		lx.pos++
	}
	return fmt.Errorf("line %d: unterminated string literal", line)
}

func (lx *lexer) decimal() {
	for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
		lx.pos++
	}
	if lx.peek(0) == '.' && isDigit(lx.peek(1)) {
		lx.pos++
		for lx.pos < len(lx.src) && (isDigit(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
			lx.pos++
		}
	}
	if c := lx.peek(0); c == 'e' || c == 'E' {
		off := 1
		if s := lx.peek(1); s == '-' || s == '+' {
			off = 2
		}
		if isDigit(lx.peek(off)) {
			lx.pos += off
			for lx.pos < len(lx.src) && isDigit(lx.src[lx.pos]) {
				lx.pos++
			}
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
