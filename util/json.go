// util/json.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DuplicateJSONKeys returns the paths of object keys that appear more
// than once in the given JSON, e.g. "location.lat" or "items[2].x". It
// stops at the first syntax error.
func DuplicateJSONKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	var dups []string

	var walk func(path string) bool
	walk = func(path string) bool {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return true
		}

		switch delim {
		case '{':
			seen := make(map[string]bool)
			for dec.More() {
				tok, err := dec.Token()
				if err != nil {
					return false
				}
				key, _ := tok.(string)
				p := key
				if path != "" {
					p = path + "." + key
				}
				if seen[key] {
					dups = append(dups, p)
				}
				seen[key] = true

				if !walk(p) {
					return false
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if !walk(fmt.Sprintf("%s[%d]", path, i)) {
					return false
				}
			}
		}

		// Closing delimiter
		_, err = dec.Token()
		return err == nil
	}
	walk("")

	return dups
}

// UnmarshalJSONBytes unmarshals the bytes into the given type; syntax and
// type errors report the line and column where they were found.
func UnmarshalJSONBytes[T any](b []byte, out *T) error {
	err := json.Unmarshal(b, out)
	if err == nil {
		return nil
	}

	var offset int64
	var serr *json.SyntaxError
	var terr *json.UnmarshalTypeError
	if errors.As(err, &serr) {
		offset = serr.Offset
	} else if errors.As(err, &terr) {
		offset = terr.Offset
	} else {
		return err
	}

	line, col := 1, 1
	for _, c := range b[:min(int(offset), len(b))] {
		if c == '\n' {
			line, col = line+1, 1
		} else {
			col++
		}
	}
	return fmt.Errorf("line %d, column %d: %w", line, col, err)
}
