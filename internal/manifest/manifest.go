package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Sentinel errors distinguishing the two ways a fingerprint can fail.
var (
	ErrRead  = errors.New("read manifest")
	ErrParse = errors.New("parse manifest")
)

// Fingerprint returns the SHA-256 hex digest of the canonical form of the
// JSON document at path. The canonical form has object keys sorted and
// insignificant whitespace removed, so formatting-only edits (reordering,
// reindenting) do not change the digest while any value change does.
func Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrRead, path, err)
	}

	canonical, err := canonicalize(data)
	if err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrParse, path, err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize decodes and re-encodes a JSON document. Numbers are kept as
// their source literals so re-encoding cannot alter their representation;
// object keys sort during marshaling.
func canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	// A manifest is a single document; anything after it is malformed.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON document")
	}

	return json.Marshal(doc)
}
