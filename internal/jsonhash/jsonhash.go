// Package jsonhash computes stable content digests of JSON documents.
// Logically identical structures hash identically regardless of object key
// order or number spelling; array order is significant.
package jsonhash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum returns the hex sha256 of the canonical form of raw. Empty input is
// hashed as JSON null; input that is not valid JSON is hashed as-is.
func Sum(raw json.RawMessage) string {
	canon, err := canonicalize(raw)
	if err != nil {
		canon = raw
	}
	digest := sha256.Sum256(canon)
	return hex.EncodeToString(digest[:])
}

func Equal(a, b json.RawMessage) bool {
	return Sum(a) == Sum(b)
}

// canonicalize decodes and re-marshals the document. encoding/json sorts map
// keys on marshal, and numbers are re-serialized from their parsed value, so
// reordering keys or respelling a number leaves the canonical bytes unchanged.
func canonicalize(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	return json.Marshal(normalizeNumbers(v))
}

// normalizeNumbers replaces every json.Number with its parsed value, so 3.20
// and 3.2 canonicalize identically. Numbers that fit neither int64 nor
// float64 keep their original spelling.
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t
	default:
		return v
	}
}
