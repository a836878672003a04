// Package mailmerge fills MERGEFIELD placeholders in .docx templates.
//
// Both simple fields (<w:fldSimple w:instr="MERGEFIELD name">) and complex
// fields (fldChar begin/instrText/separate/end runs) are supported. Nested
// fields are left untouched.
package mailmerge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

var (
	instrRe     = regexp.MustCompile(`^\s*MERGEFIELD\s+"?([^\s"\\]+)`)
	simpleRe    = regexp.MustCompile(`(?s)<w:fldSimple\b[^>]*?w:instr="([^"]*)"[^>]*?(?:/>|>(.*?)</w:fldSimple>)`)
	instrTextRe = regexp.MustCompile(`(?s)<w:instrText\b[^>]*>(.*?)</w:instrText>`)
	rPrRe       = regexp.MustCompile(`(?s)<w:rPr>.*?</w:rPr>`)
)

const (
	fldBegin    = `w:fldCharType="begin"`
	fldSeparate = `w:fldCharType="separate"`
	fldEnd      = `w:fldCharType="end"`
)

// Document is an opened template held in memory.
type Document struct {
	entries []entry
}

type entry struct {
	header zip.FileHeader
	data   []byte
}

// Open reads a .docx template.
func Open(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", path, err)
	}
	doc := &Document{entries: make([]entry, 0, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", f.Name, err)
		}
		doc.entries = append(doc.entries, entry{header: f.FileHeader, data: data})
	}
	return doc, nil
}

func isMergeablePart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	if !strings.HasPrefix(name, "word/") || !strings.HasSuffix(name, ".xml") {
		return false
	}
	base := strings.TrimPrefix(name, "word/")
	return strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")
}

// MergeFields lists the distinct merge field names declared by the template, sorted.
func (d *Document) MergeFields() []string {
	seen := map[string]struct{}{}
	for _, e := range d.entries {
		if !isMergeablePart(e.header.Name) {
			continue
		}
		body := string(e.data)
		for _, m := range simpleRe.FindAllStringSubmatch(body, -1) {
			if name, ok := fieldName(xmlUnescape(m[1])); ok {
				seen[name] = struct{}{}
			}
		}
		forEachComplexField(body, func(name string, _, _ int, _ string) {
			seen[name] = struct{}{}
		})
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge substitutes every merge field. Fields absent from values become empty.
func (d *Document) Merge(values map[string]string) {
	for i := range d.entries {
		if !isMergeablePart(d.entries[i].header.Name) {
			continue
		}
		body := string(d.entries[i].data)
		body = simpleRe.ReplaceAllStringFunc(body, func(match string) string {
			m := simpleRe.FindStringSubmatch(match)
			name, ok := fieldName(xmlUnescape(m[1]))
			if !ok {
				return match
			}
			return valueRun(rPrRe.FindString(m[2]), values[name])
		})
		body = replaceComplexFields(body, values)
		d.entries[i].data = []byte(body)
	}
}

// Write stores the document at path, overwriting an existing file.
func (d *Document) Write(path string) error {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range d.entries {
		hdr := &zip.FileHeader{Name: e.header.Name, Method: e.header.Method, Modified: e.header.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("write part %s: %w", e.header.Name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return fmt.Errorf("write part %s: %w", e.header.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func fieldName(instr string) (string, bool) {
	m := instrRe.FindStringSubmatch(instr)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// forEachComplexField calls fn with the field name, the byte span of the
// runs making up the field and the run properties of the opening run.
func forEachComplexField(body string, fn func(name string, start, end int, rPr string)) {
	pos := 0
	for {
		b := strings.Index(body[pos:], fldBegin)
		if b < 0 {
			return
		}
		b += pos
		e := strings.Index(body[b:], fldEnd)
		if e < 0 {
			return
		}
		e += b
		// nested field: skip the outer one
		if nb := strings.Index(body[b+len(fldBegin):e], fldBegin); nb >= 0 {
			pos = e + len(fldEnd)
			continue
		}
		start := runStart(body, b)
		closeRun := strings.Index(body[e:], "</w:r>")
		if start < 0 || closeRun < 0 {
			pos = e + len(fldEnd)
			continue
		}
		end := e + closeRun + len("</w:r>")
		instrEnd := e
		if s := strings.Index(body[b:e], fldSeparate); s >= 0 {
			instrEnd = b + s
		}
		var instr strings.Builder
		for _, m := range instrTextRe.FindAllStringSubmatch(body[b:instrEnd], -1) {
			instr.WriteString(m[1])
		}
		if name, ok := fieldName(xmlUnescape(instr.String())); ok {
			fn(name, start, end, rPrRe.FindString(body[start:b]))
		}
		pos = end
	}
}

func replaceComplexFields(body string, values map[string]string) string {
	type span struct {
		start, end int
		repl       string
	}
	var spans []span
	forEachComplexField(body, func(name string, start, end int, rPr string) {
		spans = append(spans, span{start: start, end: end, repl: valueRun(rPr, values[name])})
	})
	if len(spans) == 0 {
		return body
	}
	var out strings.Builder
	prev := 0
	for _, s := range spans {
		out.WriteString(body[prev:s.start])
		out.WriteString(s.repl)
		prev = s.end
	}
	out.WriteString(body[prev:])
	return out.String()
}

// runStart finds the opening <w:r> or <w:r ...> tag enclosing idx.
func runStart(body string, idx int) int {
	plain := strings.LastIndex(body[:idx], "<w:r>")
	attr := strings.LastIndex(body[:idx], "<w:r ")
	if attr > plain {
		return attr
	}
	return plain
}

func valueRun(rPr, value string) string {
	var b strings.Builder
	b.WriteString("<w:r>")
	b.WriteString(rPr)
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(&b, []byte(line))
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r>")
	return b.String()
}

var unescaper = strings.NewReplacer("&quot;", `"`, "&apos;", "'", "&lt;", "<", "&gt;", ">", "&amp;", "&")

func xmlUnescape(s string) string { return unescaper.Replace(s) }
