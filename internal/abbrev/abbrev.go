// Package abbrev loads the abbreviation dictionary: an ordered mapping from
// short labels to the snippet templates they expand to.
//
// Templates may contain a single Marker which marks where the cursor lands
// after expansion. Rendering replaces it with the LSP final tab stop.
package abbrev

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/uri"
	"gopkg.in/yaml.v3"
)

const (
	// Marker is the cursor-placement token used inside templates.
	Marker = "$CURSOR"
	// FinalTabStop is the snippet syntax for the final cursor position.
	FinalTabStop = "$0"
)

//go:embed abbreviations.json
var defaultData []byte

var loadDefault = sync.OnceValues(func() (*Dictionary, error) {
	return Parse(defaultData)
})

type Entry struct {
	Label    string
	Template string
}

// Snippet returns the template with its cursor marker replaced by the final
// tab stop. Templates without a marker are returned unchanged.
func (e Entry) Snippet() string {
	if !e.HasCursor() {
		return e.Template
	}
	return strings.ReplaceAll(e.Template, Marker, FinalTabStop)
}

func (e Entry) HasCursor() bool {
	return strings.Contains(e.Template, Marker)
}

type Warning struct {
	Line    int
	Label   string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %q: %s", w.Line, w.Label, w.Message)
}

// Dictionary is immutable once built.
type Dictionary struct {
	entries  []Entry
	index    map[string]int
	warnings []Warning
}

// Default returns the dictionary embedded in the binary.
func Default() (*Dictionary, error) {
	return loadDefault()
}

// Load reads a dictionary from a file path or a file:// URI.
func Load(location string) (*Dictionary, error) {
	path := location
	if strings.HasPrefix(location, "file://") {
		path = uri.New(location).Filename()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abbreviations: %w", err)
	}
	dict, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dict, nil
}

// Parse decodes a JSON object or a YAML mapping of label to template,
// keeping the order in which labels appear. A repeated label keeps its first
// position and takes the last template.
func Parse(data []byte) (*Dictionary, error) {
	if isJSONObject(data) {
		return parseJSON(data)
	}
	return parseYAML(data)
}

func newDictionary(size int) *Dictionary {
	return &Dictionary{
		entries: make([]Entry, 0, size),
		index:   make(map[string]int, size),
	}
}

func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// parseJSON validates the whole document first; the tokenizer alone does not
// reject every malformed input. Keys are then read in order at depth 1.
func parseJSON(data []byte) (*Dictionary, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode abbreviations: %w", err)
	}

	dict := newDictionary(len(doc))
	var (
		label     string
		line      int
		wantValue bool
	)
	tok := json.NewTokenizer(data)
	for tok.Next() {
		if tok.Depth != 1 || tok.Delim == ':' || tok.Delim == ',' {
			continue
		}
		if tok.IsKey {
			label = string(tok.String())
			line = lineOf(data, tok.Value)
			if label == "" {
				return nil, fmt.Errorf("decode abbreviations: line %d: empty label", line)
			}
			wantValue = true
			continue
		}
		if !wantValue {
			continue
		}
		wantValue = false
		if tok.Kind().Class() != json.String {
			return nil, fmt.Errorf("decode abbreviations: line %d: template for %q must be a string", lineOf(data, tok.Value), label)
		}
		dict.add(Entry{Label: label, Template: string(tok.String())}, line)
	}
	if tok.Err != nil {
		return nil, fmt.Errorf("decode abbreviations: %w", tok.Err)
	}
	return dict, nil
}

// lineOf returns the 1-based line of token, which must be a subslice of data.
func lineOf(data, token []byte) int {
	offset := cap(data) - cap(token)
	if offset < 0 || offset > len(data) {
		return 0
	}
	return 1 + bytes.Count(data[:offset], []byte{'\n'})
}

func parseYAML(data []byte) (*Dictionary, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode abbreviations: %w", err)
	}

	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind == 0 || node.Kind == yaml.DocumentNode {
		return nil, fmt.Errorf("decode abbreviations: empty document")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decode abbreviations: line %d: expected a mapping of label to template", node.Line)
	}

	dict := newDictionary(len(node.Content) / 2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if !isString(key) {
			return nil, fmt.Errorf("decode abbreviations: line %d: label must be a string", key.Line)
		}
		if key.Value == "" {
			return nil, fmt.Errorf("decode abbreviations: line %d: empty label", key.Line)
		}
		if !isString(value) {
			return nil, fmt.Errorf("decode abbreviations: line %d: template for %q must be a string", value.Line, key.Value)
		}
		dict.add(Entry{Label: key.Value, Template: value.Value}, key.Line)
	}
	return dict, nil
}

func isString(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str"
}

func (d *Dictionary) add(e Entry, line int) {
	if n := strings.Count(e.Template, Marker); n > 1 {
		d.warnings = append(d.warnings, Warning{
			Line:    line,
			Label:   e.Label,
			Message: fmt.Sprintf("template has %d cursor markers, expected at most one", n),
		})
	}
	if i, ok := d.index[e.Label]; ok {
		d.warnings = append(d.warnings, Warning{
			Line:    line,
			Label:   e.Label,
			Message: "duplicate label overrides an earlier template",
		})
		d.entries[i] = e
		return
	}
	d.index[e.Label] = len(d.entries)
	d.entries = append(d.entries, e)
}

// Entries returns the entries in dictionary order. The slice is a copy.
func (d *Dictionary) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *Dictionary) Len() int {
	return len(d.entries)
}

func (d *Dictionary) Lookup(label string) (Entry, bool) {
	i, ok := d.index[label]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// Warnings lists problems found while loading that did not prevent it.
func (d *Dictionary) Warnings() []Warning {
	out := make([]Warning, len(d.warnings))
	copy(out, d.warnings)
	return out
}
