// Package input reads the point and tower tables a run operates on.
package input

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

type textDecoder struct {
	name   string
	decode func([]byte) (string, error)
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(data), nil
}

// GIS exports on Windows default to the ANSI code page.
func defaultTextDecoders() []textDecoder {
	return []textDecoder{
		{name: "utf-8", decode: decodeUTF8},
		{name: "windows-1252", decode: func(b []byte) (string, error) { return charmap.Windows1252.NewDecoder().String(string(b)) }},
		{name: "iso-8859-1", decode: func(b []byte) (string, error) { return charmap.ISO8859_1.NewDecoder().String(string(b)) }},
	}
}

// decodeText returns data as UTF-8 text and the name of the encoding used.
func decodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	for _, dec := range defaultTextDecoders() {
		if text, err := dec.decode(data); err == nil {
			return text, dec.name, nil
		}
	}
	return "", "", fmt.Errorf("unable to decode text with supported encodings")
}

// table is a decoded CSV file with a header row.
type table struct {
	header   []string
	index    map[string]int
	rows     [][]string
	encoding string
}

func readTable(data []byte) (*table, error) {
	text, enc, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	t := &table{header: recs[0], index: make(map[string]int, len(recs[0])), encoding: enc}
	for i, name := range recs[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	for _, rec := range recs[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

// column returns the index of a case-insensitive column name.
func (t *table) column(name string) (int, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

// cell returns the trimmed value of column i in rec, or "" when rec is short.
func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
