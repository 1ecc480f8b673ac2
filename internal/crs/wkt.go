package crs

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// node is one WKT element: KEYWORD[arg, arg, ...]. Quoted strings and bare
// numbers are stored as values; nested elements as children.
type node struct {
	keyword  string
	values   []string
	children []*node
}

func (n *node) child(keywords ...string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		for _, k := range keywords {
			if strings.EqualFold(c.keyword, k) {
				return c
			}
		}
	}
	return nil
}

func (n *node) name() string {
	if n == nil || len(n.values) == 0 {
		return ""
	}
	return n.values[0]
}

type wktParser struct {
	src string
	pos int
}

func parseWKT(s string) (*node, error) {
	p := &wktParser{src: s}
	n, err := p.element()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("wkt: trailing input at offset %d", p.pos)
	}
	return n, nil
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) element() (*node, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (isKeywordByte(p.src[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("wkt: expected keyword at offset %d", p.pos)
	}
	n := &node{keyword: strings.ToUpper(p.src[start:p.pos])}
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '[' && p.src[p.pos] != '(') {
		return n, nil
	}
	closer := byte(']')
	if p.src[p.pos] == '(' {
		closer = ')'
	}
	p.pos++
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("wkt: unterminated %s", n.keyword)
		}
		switch c := p.src[p.pos]; {
		case c == closer:
			p.pos++
			return n, nil
		case c == ',':
			p.pos++
		case c == '"':
			s, err := p.quoted()
			if err != nil {
				return nil, err
			}
			n.values = append(n.values, s)
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			n.values = append(n.values, p.number())
		default:
			child, err := p.element()
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		}
	}
}

func (p *wktParser) quoted() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		if c == '"' {
			// WKT escapes a quote by doubling it
			if p.pos < len(p.src) && p.src[p.pos] == '"' {
				b.WriteByte('"')
				p.pos++
				continue
			}
			return b.String(), nil
		}
		b.WriteByte(c)
	}
	return "", fmt.Errorf("wkt: unterminated string")
}

func (p *wktParser) number() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == ']' || c == ')' || unicode.IsSpace(rune(c)) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func isKeywordByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

// authorityCode reads AUTHORITY["EPSG","26911"] (WKT1) or ID["EPSG",26911] (WKT2).
func authorityCode(n *node) int {
	a := n.child("AUTHORITY", "ID")
	if a == nil || len(a.values) < 2 || !strings.EqualFold(a.values[0], "EPSG") {
		return 0
	}
	code, err := strconv.Atoi(strings.TrimSpace(a.values[1]))
	if err != nil {
		return 0
	}
	return code
}
