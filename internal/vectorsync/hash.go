package vectorsync

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"
)

// DefaultVolatileFields are stripped before hashing. The extraction timestamp
// changes on every conversion run without the content changing.
var DefaultVolatileFields = []string{"extracted_date"}

// Canonicalize returns a canonical JSON string for value: volatile keys
// removed at every nesting depth, map keys sorted, no insignificant
// whitespace, no HTML escaping. A nil volatileFields slice selects
// DefaultVolatileFields; pass an empty slice to strip nothing.
func Canonicalize(value any, volatileFields []string) (string, error) {
	cleaned := stripVolatile(value, volatileSet(volatileFields))
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cleaned); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ContentHash is the lowercase-hex SHA-256 of the canonical serialization.
// Two values hash equal iff they are equal after stripping volatile fields
// and normalizing key order.
func ContentHash(value any, volatileFields []string) (string, error) {
	canonical, err := Canonicalize(value, volatileFields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// ContentHashFile loads JSON from path and hashes it.
func ContentHashFile(path string, volatileFields []string) (string, error) {
	value, err := loadJSONValue(path)
	if err != nil {
		return "", err
	}
	return ContentHash(value, volatileFields)
}

func volatileSet(fields []string) map[string]struct{} {
	if fields == nil {
		fields = DefaultVolatileFields
	}
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

func stripVolatile(value any, volatile map[string]struct{}) any {
	switch typed := value.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(typed))
		for key, nested := range typed {
			if _, drop := volatile[key]; drop {
				continue
			}
			cleaned[key] = stripVolatile(nested, volatile)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(typed))
		for i, item := range typed {
			cleaned[i] = stripVolatile(item, volatile)
		}
		return cleaned
	default:
		return value
	}
}

// decodeJSONValue preserves numeric literals verbatim so re-encoding never
// changes a number's representation.
func decodeJSONValue(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func loadJSONValue(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeJSONValue(f)
}
