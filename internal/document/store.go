// Package document keeps the text of the documents the editor has open.
//
// The store is not safe for concurrent use. The LSP dispatcher handles one
// message at a time, so every mutation and read happens on its goroutine.
package document

import (
	"strings"

	"go.lsp.dev/protocol"
)

type Document struct {
	URI   protocol.DocumentURI
	Lines []string
}

// TextBefore returns the part of the cursor's line that precedes it.
// Character is counted in UTF-16 code units and clamped to the line end.
func (d *Document) TextBefore(pos protocol.Position) (string, bool) {
	if int(pos.Line) >= len(d.Lines) {
		return "", false
	}
	line := d.Lines[pos.Line]
	return line[:utf16OffsetToByteOffset(line, int(pos.Character))], true
}

type Store struct {
	docs map[protocol.DocumentURI]*Document
}

func NewStore() *Store {
	return &Store{docs: make(map[protocol.DocumentURI]*Document)}
}

// Open inserts the document or replaces it if it is already open.
func (s *Store) Open(uri protocol.DocumentURI, text string) {
	s.docs[uri] = &Document{URI: uri, Lines: SplitLines(text)}
}

// Change replaces the whole text of an open document. Changes for documents
// that were never opened are dropped; the next open brings the store back in
// sync.
func (s *Store) Change(uri protocol.DocumentURI, text string) bool {
	doc, ok := s.docs[uri]
	if !ok {
		return false
	}
	doc.Lines = SplitLines(text)
	return true
}

func (s *Store) Close(uri protocol.DocumentURI) {
	delete(s.docs, uri)
}

func (s *Store) Get(uri protocol.DocumentURI) (*Document, bool) {
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *Store) Line(uri protocol.DocumentURI, index int) (string, bool) {
	doc, ok := s.docs[uri]
	if !ok || index < 0 || index >= len(doc.Lines) {
		return "", false
	}
	return doc.Lines[index], true
}

func (s *Store) Len() int {
	return len(s.docs)
}

// SplitLines splits text on "\n", "\r\n" and "\r". Terminators are dropped
// and a trailing terminator yields a final empty line, matching how editors
// count lines.
func SplitLines(text string) []string {
	if !strings.Contains(text, "\r") {
		return strings.Split(text, "\n")
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	return append(lines, text[start:])
}
