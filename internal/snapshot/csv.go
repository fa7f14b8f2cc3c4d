// Package snapshot writes the durable backup exports taken before any
// mutation runs: one CSV row per record, one column per observed field.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"rmt-go/internal/rmt"
)

// Encode writes records to w as CSV. The header is id, collection,
// createdAt followed by the sorted union of field keys across the record
// set; a field key with no non-empty value in any record is omitted.
func Encode(w io.Writer, records []rmt.Record) error {
	seen := make(map[string]bool)
	for _, r := range records {
		for key, value := range r.Fields {
			if value != "" {
				seen[key] = true
			}
		}
	}
	fieldKeys := make([]string, 0, len(seen))
	for key := range seen {
		fieldKeys = append(fieldKeys, key)
	}
	sort.Strings(fieldKeys)

	cw := csv.NewWriter(w)

	header := append([]string{"id", "collection", "createdAt"}, fieldKeys...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range records {
		row[0] = r.ID
		row[1] = r.Collection
		row[2] = r.CreatedAt.UTC().Format(time.RFC3339)
		for i, key := range fieldKeys {
			row[3+i] = r.Fields[key]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %s: %w", r.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// encodeSnapshot renders records to CSV bytes, encrypting them when enc is
// set, and returns the bytes plus the object name (with ".age" appended
// for encrypted output).
func encodeSnapshot(name string, records []rmt.Record, enc rmt.Encryptor) ([]byte, string, error) {
	var plain bytes.Buffer
	if err := Encode(&plain, records); err != nil {
		return nil, "", err
	}

	if enc == nil {
		return plain.Bytes(), name, nil
	}

	var sealed bytes.Buffer
	if err := enc.Encrypt(&plain, &sealed); err != nil {
		return nil, "", fmt.Errorf("encrypting snapshot: %w", err)
	}
	return sealed.Bytes(), name + ".age", nil
}
