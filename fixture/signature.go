package fixture

import (
	"crypto/md5" //nolint:gosec // identity hash, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/privaz/one-go/entity"
)

// entry is one key of a canonicalized mapping.
type entry struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// Canonicalize rewrites v so that its JSON form does not depend on map
// iteration or template insertion order: every mapping, at every nesting
// level, becomes a list of key/value entries sorted by key.
func Canonicalize(v any) (any, error) {
	n, err := entity.Normalize("", v)
	if err != nil {
		return nil, err
	}

	switch tv := n.(type) {
	case *entity.Template:
		keys := tv.Keys()
		sort.Strings(keys)
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			raw, _ := tv.Get(k)
			cv, err := Canonicalize(raw)
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry{Key: k, Value: cv})
		}
		return entries, nil
	case []any:
		items := make([]any, len(tv))
		for i, item := range tv {
			cv, err := Canonicalize(item)
			if err != nil {
				return nil, err
			}
			items[i] = cv
		}
		return items, nil
	default:
		return n, nil
	}
}

// Signature returns the hex MD5 of the canonical JSON form of params.
func Signature(params []any) (string, error) {
	canon, err := Canonicalize(params)
	if err != nil {
		return "", fmt.Errorf("fixture: canonicalize params: %w", err)
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("fixture: encode params: %w", err)
	}
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:]), nil
}
