package bengine

import (
	"fmt"
	"regexp"
	"strings"
)

// Njn is the engine file format: a flat sequence of namespaced block
// segments of the form
//
//	{%type:namespace:conditional
//	content lines
//	%}
//
// The conditional part is optional. Content accumulates strictly in file
// order; text after a %} on the same line is re-scanned as a potential new
// open marker. Literal {% and %} inside content are escaped as \{% and \%}
// on write and unescaped on read.

// NjnBlock is one parsed segment of an engine file.
type NjnBlock struct {
	Type        string
	Content     string
	Conditional string // empty when the marker had no conditional part
}

// NjnDocument is the ordered result of parsing an engine file.
type NjnDocument struct {
	Order  []string // namespaces in first-occurrence order
	Blocks map[string]NjnBlock

	// Warnings records recoverable oddities found while parsing, such as
	// a namespace being opened twice. The document is still usable.
	Warnings []string
}

const (
	openMarker  = "{%"
	closeMarker = "%}"

	// placeholders for escaped markers while a line is being scanned
	escapedOpen  = "\x00\x01"
	escapedClose = "\x00\x02"
)

var markerSpace = regexp.MustCompile(`\s`)

type njnParser struct {
	file string
	line int

	doc  *NjnDocument
	cur  string // namespace currently accumulating content
	seen map[string]bool
}

// ParseEngineFile parses Njn text into an ordered block document. The file
// name is used only for error reporting and may be empty. A malformed open
// marker is fatal: the returned document is nil and the error is a
// *ParseError carrying the line number.
func ParseEngineFile(file, text string) (*NjnDocument, error) {
	p := &njnParser{
		file: file,
		doc:  &NjnDocument{Blocks: make(map[string]NjnBlock)},
		seen: make(map[string]bool),
	}

	searching := true
	for _, line := range splitKeepNewlines(text) {
		p.line++
		scanned := strings.ReplaceAll(line, `\`+openMarker, escapedOpen)
		scanned = strings.ReplaceAll(scanned, `\`+closeMarker, escapedClose)

		var err error
		if searching {
			var opened bool
			opened, err = p.parseOpen(scanned)
			searching = !opened
		} else {
			searching, err = p.parseClose(scanned)
		}
		if err != nil {
			return nil, err
		}
	}

	return p.doc, nil
}

// parseOpen looks for an open marker. Lines without one are skipped while
// searching, which is what makes top-level # comment lines legal.
func (p *njnParser) parseOpen(line string) (bool, error) {
	idx := strings.Index(line, openMarker)
	if idx < 0 {
		return false, nil
	}

	rest := line[idx+len(openMarker):]
	parts := strings.Split(rest, ":")

	var btype, bname, bcond, trailing string
	switch {
	case len(parts) > 2:
		btype = parts[0]
		bname = parts[1]
		last := markerSpace.Split(parts[2], -1)
		bcond = last[0]
		if len(last) > 1 {
			trailing = last[1]
		}
	case len(parts) > 1:
		btype = parts[0]
		last := markerSpace.Split(parts[1], -1)
		bname = last[0]
		if len(last) > 1 {
			trailing = last[1]
		}
	default:
		return false, NewParseError(p.file, p.line, "invalid engine file").
			WithCode(strings.TrimRight(line, "\n")).
			WithHint("open marker needs at least {%type:namespace")
	}

	p.createBlock(bname, btype, bcond)
	if trailing != "" {
		if _, err := p.parseClose(trailing); err != nil {
			return false, err
		}
	}
	return true, nil
}

// parseClose accumulates content until a close marker, then re-scans the
// remainder of the line for a new open marker.
func (p *njnParser) parseClose(line string) (bool, error) {
	idx := strings.Index(line, closeMarker)
	if idx < 0 {
		p.addToBlock(line)
		return false, nil
	}
	p.addToBlock(line[:idx])
	opened, err := p.parseOpen(line[idx+len(closeMarker):])
	return !opened, err
}

func (p *njnParser) createBlock(bname, btype, bcond string) {
	if p.seen[bname] {
		p.doc.Warnings = append(p.doc.Warnings,
			fmt.Sprintf("line %d: namespace %q opened more than once, earlier content discarded", p.line, bname))
	} else {
		p.seen[bname] = true
		p.doc.Order = append(p.doc.Order, bname)
	}
	p.doc.Blocks[bname] = NjnBlock{Type: btype, Conditional: bcond}
	p.cur = bname
}

func (p *njnParser) addToBlock(line string) {
	if p.cur == "" {
		return
	}
	line = strings.ReplaceAll(line, escapedOpen, openMarker)
	line = strings.ReplaceAll(line, escapedClose, closeMarker)
	b := p.doc.Blocks[p.cur]
	b.Content += line
	p.doc.Blocks[p.cur] = b
}

// splitKeepNewlines splits text into lines, each retaining its trailing
// newline so accumulated content reproduces the source byte-for-byte.
func splitKeepNewlines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			return lines
		}
		lines = append(lines, text[:i+1])
		text = text[i+1:]
		if text == "" {
			return lines
		}
	}
}

// MarshalNjn serializes a document back to engine file text. Blocks without
// a namespace get an auto-generated ns<N> one, numbered from 1 per call.
// Parsing the output yields a document equal to the input (modulo filled-in
// namespaces).
func MarshalNjn(doc *NjnDocument) string {
	var b strings.Builder
	ns := 1
	for _, name := range doc.Order {
		blk := doc.Blocks[name]
		if name == "" {
			name = fmt.Sprintf("ns%d", ns)
			ns++
		}
		b.WriteString(formatNjnSegment(blk.Type, name, blk.Conditional, blk.Content))
	}
	return b.String()
}

// formatNjnSegment renders one {% ... %} segment with escaped content.
func formatNjnSegment(btype, bname, bcond, content string) string {
	marker := btype + ":" + bname
	if bcond != "" {
		marker += ":" + bcond
	}
	content = escapeNjnContent(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return openMarker + marker + "\n" + content + closeMarker + "\n\n"
}

func escapeNjnContent(content string) string {
	content = strings.ReplaceAll(content, openMarker, `\`+openMarker)
	return strings.ReplaceAll(content, closeMarker, `\`+closeMarker)
}
