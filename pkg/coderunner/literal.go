package coderunner

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnsupportedExpression marks argument text that is not a pure literal.
var ErrUnsupportedExpression = errors.New("unsupported argument expression")

var assignmentPattern = regexp.MustCompile(`(?s)^(?:(?:let|const|var)\s+)?([A-Za-z_$][A-Za-z0-9_$]*)\s*=(.*)$`)

// ParseLiteral converts a JavaScript or Python literal into a JSON compatible
// Go value: json.Number, string, bool, nil, []any or map[string]any. Numbers
// keep their digits so large integers reach the host exactly. Tuples become
// slices. Anything beyond pure literals is rejected.
func ParseLiteral(expr string) (any, error) {
	p := &literalParser{src: strings.TrimSpace(expr)}
	p.src = strings.TrimSuffix(p.src, ";")
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.rest())
	}
	return value, nil
}

// BindArguments parses a test input such as `nums = [2,7,11,15], target = 9`
// and returns one value per parameter. Named segments bind by name, the rest
// by position; missing slots are nil. Without parameter names every parsed
// value is returned in order.
func BindArguments(input string, params []string) ([]any, error) {
	statements := splitStatements(input)

	named := make(map[string]any, len(statements))
	positional := make([]any, 0, len(statements))
	for _, statement := range statements {
		name, expr := splitAssignment(statement)
		value, err := ParseLiteral(expr)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnsupportedExpression, statement, err)
		}
		if name != "" {
			named[name] = value
		}
		positional = append(positional, value)
	}

	if len(params) == 0 {
		return positional, nil
	}

	args := make([]any, len(params))
	for i, param := range params {
		if value, ok := named[param]; ok {
			args[i] = value
			continue
		}
		if i < len(positional) {
			args[i] = positional[i]
		}
	}
	return args, nil
}

func splitAssignment(statement string) (string, string) {
	match := assignmentPattern.FindStringSubmatch(statement)
	if match == nil || strings.HasPrefix(match[2], "=") {
		return "", statement
	}
	return match[1], match[2]
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) rest() string {
	rest := p.src[p.pos:]
	if len(rest) > 16 {
		rest = rest[:16] + "..."
	}
	return rest
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *literalParser) parseValue() (any, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '[':
		return p.parseSequence('[', ']')
	case c == '(':
		return p.parseParenthesised()
	case c == '{':
		return p.parseMapping()
	case c == '"' || c == '\'':
		return p.parseString()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseKeyword()
	default:
		return nil, p.errorf("unexpected %q", p.rest())
	}
}

func (p *literalParser) parseSequence(open, closer byte) ([]any, error) {
	p.pos++ // opening bracket
	items := make([]any, 0)
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			return items, nil
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, value)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, p.errorf("expected ',' or %q in %c...%c", closer, open, closer)
		}
	}
}

// parseParenthesised handles both grouping `(1)` and tuples `(1, 2)` / `(1,)`.
func (p *literalParser) parseParenthesised() (any, error) {
	start := p.pos
	p.pos++
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return []any{}, nil
	}
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return first, nil
	}
	p.pos = start
	return p.parseSequence('(', ')')
}

func (p *literalParser) parseMapping() (map[string]any, error) {
	p.pos++
	result := make(map[string]any)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return result, nil
		}
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		result[key] = value
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}' in mapping")
		}
	}
}

func (p *literalParser) parseKey() (string, error) {
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.parseString()
	case isIdentStart(c):
		start := p.pos
		for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
			p.pos++
		}
		return p.src[start:p.pos], nil
	case c == '-' || (c >= '0' && c <= '9'):
		number, err := p.parseNumber()
		if err != nil {
			return "", err
		}
		return numberKey(number), nil
	default:
		return "", p.errorf("invalid mapping key %q", p.rest())
	}
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var out strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return out.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			p.pos++
			if err := p.writeEscape(&out); err != nil {
				return "", err
			}
		case c == '\n':
			return "", p.errorf("newline in string literal")
		default:
			out.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) writeEscape(out *strings.Builder) error {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		out.WriteByte('\n')
	case 't':
		out.WriteByte('\t')
	case 'r':
		out.WriteByte('\r')
	case 'b':
		out.WriteByte('\b')
	case 'f':
		out.WriteByte('\f')
	case '0':
		out.WriteByte(0)
	case 'u':
		if p.pos+4 > len(p.src) {
			return p.errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
		if err != nil {
			return p.errorf("invalid unicode escape")
		}
		out.WriteRune(rune(code))
		p.pos += 4
	default:
		out.WriteByte(c)
	}
	return nil
}

func (p *literalParser) parseNumber() (json.Number, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
		p.skipSpace()
		if isIdentStart(p.peek()) {
			return "", p.errorf("non-finite numbers are not supported")
		}
	}
	digitsStart := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '_' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && p.pos > digitsStart && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E') {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	text = strings.Join(strings.Fields(text), "")
	number, ok := normalizeNumber(text)
	if !ok {
		return "", p.errorf("invalid number %q", text)
	}
	return number, nil
}

var jsonNumberPattern = regexp.MustCompile(`^-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?$`)

// normalizeNumber rewrites literal spellings such as +5, .5, 5. and 007 into
// JSON number text without changing the value.
func normalizeNumber(text string) (json.Number, bool) {
	sign := ""
	switch {
	case strings.HasPrefix(text, "-"):
		sign, text = "-", text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}

	mantissa, exponent := text, ""
	if i := strings.IndexAny(text, "eE"); i >= 0 {
		mantissa, exponent = text[:i], text[i:]
	}
	whole, fraction, hasPoint := strings.Cut(mantissa, ".")
	if whole == "" && fraction == "" {
		return "", false
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	mantissa = whole
	if hasPoint {
		if fraction == "" {
			fraction = "0"
		}
		mantissa += "." + fraction
	}

	number := sign + mantissa + exponent
	if !jsonNumberPattern.MatchString(number) {
		return "", false
	}
	return json.Number(number), true
}

// numberKey renders a numeric mapping key the way JSON encoders do: integral
// values without a fraction, everything else in shortest float form.
func numberKey(number json.Number) string {
	if value, ok := exactNumber(string(number)); ok && value.IsInt() {
		return value.Num().String()
	}
	if f, err := number.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return number.String()
}

func (p *literalParser) parseKeyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	switch word := p.src[start:p.pos]; word {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None", "undefined":
		return nil, nil
	default:
		p.pos = start
		return nil, p.errorf("identifier %q is not a literal", word)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
