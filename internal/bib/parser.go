// Package bib parses BibTeX reference files into screening records. The
// parser is deliberately forgiving: malformed entries are skipped, never
// fatal, because exported .bib files are messy in practice.
package bib

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
)

// Parse scans BibTeX content and returns every complete entry. Field names
// and entry types are lowercased; values keep their inner whitespace.
func Parse(content string) []model.BibRecord {
	var records []model.BibRecord
	p := &parser{src: content}

	for p.pos < len(p.src) {
		if p.src[p.pos] != '@' {
			p.pos++
			continue
		}
		if record, ok := p.readEntry(); ok {
			records = append(records, record)
		}
	}

	return records
}

type parser struct {
	src string
	pos int
}

func (p *parser) readEntry() (model.BibRecord, bool) {
	entryStart := p.pos
	p.pos++ // skip '@'

	typeStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '{' && !isSpace(p.src[p.pos]) {
		p.pos++
	}
	entryType := strings.TrimSpace(p.src[typeStart:p.pos])

	for p.pos < len(p.src) && p.src[p.pos] != '{' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return model.BibRecord{}, false
	}
	p.pos++ // skip '{'

	p.skipSpace()
	keyStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ',' && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
		p.pos++
	}
	key := strings.TrimSpace(p.src[keyStart:p.pos])

	for p.pos < len(p.src) && p.src[p.pos] != '\n' && p.src[p.pos] != '\r' {
		if p.src[p.pos] == ',' {
			p.pos++
			break
		}
		p.pos++
	}

	fields := make(map[string]string)
	finished := false

	for p.pos < len(p.src) {
		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		if p.src[p.pos] == '}' {
			finished = true
			p.pos++
			break
		}

		nameStart := p.pos
		for p.pos < len(p.src) {
			c := p.src[p.pos]
			if c == '=' || c == '\n' || c == '\r' || c == ' ' || c == '\t' {
				break
			}
			p.pos++
		}
		name := strings.TrimSpace(p.src[nameStart:p.pos])
		if name == "" {
			p.skipLine()
			continue
		}

		for p.pos < len(p.src) && p.src[p.pos] != '=' {
			p.pos++
		}
		if p.pos >= len(p.src) || p.src[p.pos] != '=' {
			p.skipLine()
			continue
		}
		p.pos++ // skip '='

		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}

		value, err := p.readValue()
		if err != nil {
			return model.BibRecord{}, false
		}
		fields[strings.ToLower(name)] = strings.TrimSpace(value)

		for p.pos < len(p.src) {
			c := p.src[p.pos]
			if c == ',' {
				p.pos++
				break
			}
			if c != '\n' && c != '\r' && c != ' ' && c != '\t' {
				break
			}
			p.pos++
		}
	}

	if !finished {
		return model.BibRecord{}, false
	}

	return model.BibRecord{
		Type:   strings.ToLower(entryType),
		Key:    key,
		Fields: fields,
		Raw:    p.src[entryStart:p.pos],
	}, true
}

func (p *parser) readValue() (string, error) {
	switch p.src[p.pos] {
	case '{':
		return p.readBraceValue()
	case '"':
		return p.readQuotedValue()
	default:
		return p.readSimpleValue(), nil
	}
}

// readBraceValue reads a {...} value, honoring nested braces.
func (p *parser) readBraceValue() (string, error) {
	depth := 1
	p.pos++ // skip '{'
	start := p.pos

	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				value := p.src[start:p.pos]
				p.pos++
				return value, nil
			}
		}
		p.pos++
	}
	return "", eris.New("bib: unterminated brace value")
}

func (p *parser) readQuotedValue() (string, error) {
	p.pos++ // skip opening quote
	start := p.pos

	for p.pos < len(p.src) {
		if p.src[p.pos] == '"' && p.src[p.pos-1] != '\\' {
			value := p.src[start:p.pos]
			p.pos++
			return value, nil
		}
		p.pos++
	}
	return "", eris.New("bib: unterminated quoted value")
}

func (p *parser) readSimpleValue() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ',' || c == '\n' || c == '\r' {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos])
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) skipLine() {
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.pos++
	}
	if p.pos < len(p.src) {
		p.pos++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
