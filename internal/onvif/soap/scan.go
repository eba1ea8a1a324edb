package soap

import (
	"fmt"
	"strings"
)

// This file implements the small XML subset the codec needs: element tags
// with quoted attributes, comments, CDATA sections, processing instructions
// and declarations. Elements are matched by local name with any namespace
// prefix. Entities other than the five predefined ones are left untouched.
// It is deliberately not a general XML parser.

// tag is a single start, end or empty-element tag.
type tag struct {
	name        string // qualified name as written, e.g. "s:Body"
	start       int    // offset of '<'
	end         int    // offset one past '>'
	closing     bool
	selfClosing bool
}

func (t tag) local() string {
	return localName(t.name)
}

// element is a located element; inner content is doc[innerStart:innerEnd].
type element struct {
	open       tag
	innerStart int
	innerEnd   int
	end        int
}

// localName strips a namespace prefix.
func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isNameEnd(c byte) bool {
	switch c {
	case '>', '/', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// nextTag returns the first element tag at or after pos, skipping comments,
// CDATA, processing instructions and declarations. ok is false when the
// document has no further tags.
func nextTag(doc string, pos int) (t tag, ok bool, err error) {
	for pos < len(doc) {
		i := strings.IndexByte(doc[pos:], '<')
		if i < 0 {
			return tag{}, false, nil
		}
		start := pos + i
		rest := doc[start:]

		var skip string
		switch {
		case strings.HasPrefix(rest, "<!--"):
			skip = "-->"
		case strings.HasPrefix(rest, "<![CDATA["):
			skip = "]]>"
		case strings.HasPrefix(rest, "<?"):
			skip = "?>"
		case strings.HasPrefix(rest, "<!"):
			skip = ">"
		}
		if skip != "" {
			end := strings.Index(rest[2:], skip)
			if end < 0 {
				return tag{}, false, fmt.Errorf("%w: unterminated markup at offset %d", ErrUnclosedElement, start)
			}
			pos = start + 2 + end + len(skip)
			continue
		}

		t = tag{start: start}
		j := 1
		if j < len(rest) && rest[j] == '/' {
			t.closing = true
			j++
		}
		nameStart := j
		for j < len(rest) && !isNameEnd(rest[j]) {
			j++
		}
		t.name = rest[nameStart:j]
		if t.name == "" {
			// a bare '<' is not markup we understand; step over it
			pos = start + 1
			continue
		}

		var quote byte
		for ; j < len(rest); j++ {
			c := rest[j]
			if quote != 0 {
				if c == quote {
					quote = 0
				}
				continue
			}
			if c == '"' || c == '\'' {
				quote = c
				continue
			}
			if c == '>' {
				break
			}
		}
		if j >= len(rest) {
			return tag{}, false, fmt.Errorf("%w: <%s> has no '>'", ErrUnclosedElement, t.name)
		}
		t.end = start + j + 1
		t.selfClosing = !t.closing && rest[j-1] == '/'
		return t, true, nil
	}
	return tag{}, false, nil
}

// elementAt completes a start tag into an element by locating the end tag
// that balances it. Nested elements with the same qualified name are counted,
// so <Body><Body/></Body> and <a:X><a:X></a:X></a:X> resolve correctly.
func elementAt(doc string, open tag) (element, error) {
	if open.selfClosing {
		return element{open: open, innerStart: open.end, innerEnd: open.end, end: open.end}, nil
	}

	depth := 1
	pos := open.end
	for {
		t, ok, err := nextTag(doc, pos)
		if err != nil {
			return element{}, err
		}
		if !ok {
			return element{}, fmt.Errorf("%w: <%s>", ErrUnclosedElement, open.name)
		}
		pos = t.end
		if t.name != open.name || t.selfClosing {
			continue
		}
		if !t.closing {
			depth++
			continue
		}
		depth--
		if depth == 0 {
			return element{open: open, innerStart: open.end, innerEnd: t.start, end: t.end}, nil
		}
	}
}

// findElement returns the first element anywhere in doc[pos:] whose local name
// matches.
func findElement(doc, local string, pos int) (element, bool, error) {
	for {
		t, ok, err := nextTag(doc, pos)
		if err != nil || !ok {
			return element{}, false, err
		}
		pos = t.end
		if t.closing || t.local() != local {
			continue
		}
		el, err := elementAt(doc, t)
		if err != nil {
			return element{}, false, err
		}
		return el, true, nil
	}
}

// findChild returns the first direct child of doc[from:to] whose local name
// matches. Siblings are skipped whole, so a same-named descendant of an
// earlier sibling is never returned.
func findChild(doc string, from, to int, local string) (element, bool, error) {
	region := doc[:to]
	pos := from
	for {
		t, ok, err := nextTag(region, pos)
		if err != nil || !ok {
			return element{}, false, err
		}
		if t.closing {
			pos = t.end
			continue
		}
		el, err := elementAt(region, t)
		if err != nil {
			return element{}, false, err
		}
		if t.local() == local {
			return el, true, nil
		}
		pos = el.end
	}
}

var xmlUnescaper = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

// ElementText returns the text content of the first element in fragment with
// the given local name, with the predefined entities expanded. ok is false
// when no such complete element exists.
func ElementText(fragment, local string) (string, bool) {
	el, ok, err := findElement(fragment, local, 0)
	if err != nil || !ok {
		return "", false
	}
	return xmlUnescaper.Replace(fragment[el.innerStart:el.innerEnd]), true
}
