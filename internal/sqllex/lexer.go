// Package sqllex is a small SQL tokenizer. It understands enough of the
// lexical grammar (quoting, comments, dotted names) for reference extraction;
// it is not a parser.
package sqllex

import (
	"strings"
)

// Kind classifies a token
type Kind int

const (
	EOF Kind = iota
	Ident
	QuotedIdent
	Keyword
	String
	Number
	Punct
	Illegal
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Ident:
		return "IDENT"
	case QuotedIdent:
		return "QUOTED_IDENT"
	case Keyword:
		return "KEYWORD"
	case String:
		return "STRING"
	case Number:
		return "NUMBER"
	case Punct:
		return "PUNCT"
	default:
		return "ILLEGAL"
	}
}

// Token is one lexical unit. Text is the literal with quotes removed;
// Offset is the byte offset of the token start.
type Token struct {
	Kind   Kind
	Text   string
	Offset int
}

// Upper returns the upper-cased text
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Is reports whether t is the keyword kw (case-insensitive)
func (t Token) Is(kw string) bool {
	return t.Kind == Keyword && strings.EqualFold(t.Text, kw)
}

// IsPunct reports whether t is the punctuation p
func (t Token) IsPunct(p string) bool {
	return t.Kind == Punct && t.Text == p
}

// IsName reports whether t can name a table, alias or column
func (t Token) IsName() bool {
	return t.Kind == Ident || t.Kind == QuotedIdent
}

var keywords = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		ALL AND ANTI AS ASC ASOF BETWEEN BY CASE CROSS DESC DISTINCT ELSE END EXCEPT
		EXISTS FALSE FETCH FILTER FROM FULL GROUP HAVING ILIKE IN INNER INTERSECT IS
		JOIN LATERAL LEFT LIKE LIMIT NATURAL NOT NULL OFFSET ON OR ORDER OUTER OVER
		PARTITION POSITIONAL QUALIFY RECURSIVE RIGHT SELECT SEMI THEN TRUE UNION USING
		VALUES WHEN WHERE WINDOW WITH
		DROP DELETE UPDATE INSERT TRUNCATE ALTER CREATE EXEC`) {
		keywords[kw] = struct{}{}
	}
}

// IsKeyword reports whether word is a reserved keyword
func IsKeyword(word string) bool {
	_, ok := keywords[strings.ToUpper(word)]
	return ok
}

// Lexer tokenizes SQL input
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize returns every token of input, without the trailing EOF
func Tokenize(input string) []Token {
	l := NewLexer(input)

	var tokens []Token

	for {
		tok := l.Next()
		if tok.Kind == EOF {
			return tokens
		}

		tokens = append(tokens, tok)
	}
}

// Next returns the next token, skipping whitespace and comments
func (l *Lexer) Next() Token {
	l.skipWhitespaceAndComments()

	if l.pos >= len(l.input) {
		return Token{Kind: EOF, Offset: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == '\'':
		return Token{Kind: String, Text: l.readQuoted('\''), Offset: start}
	case ch == '"':
		return Token{Kind: QuotedIdent, Text: l.readQuoted('"'), Offset: start}
	case ch == '`':
		return Token{Kind: QuotedIdent, Text: l.readQuoted('`'), Offset: start}
	case isLetter(ch) || ch == '_':
		word := l.readWhile(func(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' || c == '$' })
		if IsKeyword(word) {
			return Token{Kind: Keyword, Text: word, Offset: start}
		}

		return Token{Kind: Ident, Text: word, Offset: start}
	case isDigit(ch):
		return Token{Kind: Number, Text: l.readNumber(), Offset: start}
	}

	for _, op := range []string{"<>", "<=", ">=", "!=", "||", "::"} {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return Token{Kind: Punct, Text: op, Offset: start}
		}
	}

	l.pos++

	if strings.IndexByte("(),.;*=<>+-/%[]{}:", ch) >= 0 {
		return Token{Kind: Punct, Text: string(ch), Offset: start}
	}

	return Token{Kind: Illegal, Text: string(ch), Offset: start}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.pos++
		case strings.HasPrefix(l.input[l.pos:], "--"):
			end := strings.IndexByte(l.input[l.pos:], '\n')
			if end == -1 {
				l.pos = len(l.input)
			} else {
				l.pos += end + 1
			}
		case strings.HasPrefix(l.input[l.pos:], "/*"):
			end := strings.Index(l.input[l.pos+2:], "*/")
			if end == -1 {
				l.pos = len(l.input)
			} else {
				l.pos += end + 4
			}
		default:
			return
		}
	}
}

// readQuoted reads a literal delimited by quote; a doubled quote is an escape
func (l *Lexer) readQuoted(quote byte) string {
	l.pos++ // opening quote

	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
				sb.WriteByte(quote)
				l.pos += 2

				continue
			}

			l.pos++

			break
		}

		sb.WriteByte(ch)
		l.pos++
	}

	return sb.String()
}

func (l *Lexer) readWhile(accept func(byte) bool) string {
	start := l.pos
	for l.pos < len(l.input) && accept(l.input[l.pos]) {
		l.pos++
	}

	return l.input[start:l.pos]
}

func (l *Lexer) readNumber() string {
	start := l.pos
	l.readWhile(isDigit)

	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && isDigit(l.input[l.pos+1]) {
		l.pos++
		l.readWhile(isDigit)
	}

	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}

		l.readWhile(isDigit)
	}

	return l.input[start:l.pos]
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
