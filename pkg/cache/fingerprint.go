package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scope groups keys that are invalidated together.
type Scope string

// ScopeContracts covers every result derived from contracts, suppliers and amendments.
const ScopeContracts Scope = "contracts"

// Kind is the result kind of a cached entry.
type Kind string

const (
	KindList   Kind = "list"
	KindDetail Kind = "detail"
	KindStat   Kind = "stat"
)

// Key addresses one cache entry.
type Key struct {
	Scope       Scope
	Kind        Kind
	Fingerprint string
}

// NewKey fingerprints params and namespaces the result under scope and kind.
func NewKey(scope Scope, kind Kind, params map[string]any) Key {
	return Key{Scope: scope, Kind: kind, Fingerprint: Fingerprint(params)}
}

func (k Key) String() string {
	return string(k.Scope) + ":" + string(k.Kind) + ":" + k.Fingerprint
}

// Fingerprint returns a canonical SHA-256 of query parameters. Keys are
// trimmed and lower-cased, then sorted. Absent and empty values (nil, "", nil
// pointers, zero times, empty slices) collapse to one sentinel and are left
// out, so {query:"silnice", kategorie:""} and {query:"silnice"} share a key.
// Slice values are treated as sets.
func Fingerprint(params map[string]any) string {
	canonical := make(map[string][]string, len(params))
	for name, raw := range params {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		values := canonicalValues(raw)
		if len(values) == 0 {
			continue
		}
		canonical[name] = append(canonical[name], values...)
	}

	names := make([]string, 0, len(canonical))
	for name := range canonical {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		values := canonical[name]
		sort.Strings(values)
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(strconv.Quote(name))
		b.WriteByte('=')
		for j, v := range values {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(v))
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalValues stringifies one parameter value. A nil result is the
// absent/empty sentinel.
func canonicalValues(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return single(strings.TrimSpace(v))
	case *string:
		if v == nil {
			return nil
		}
		return single(strings.TrimSpace(*v))
	case []string:
		var out []string
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case bool:
		return []string{strconv.FormatBool(v)}
	case int:
		return []string{strconv.FormatInt(int64(v), 10)}
	case int32:
		return []string{strconv.FormatInt(int64(v), 10)}
	case int64:
		return []string{strconv.FormatInt(v, 10)}
	case *int:
		if v == nil {
			return nil
		}
		return []string{strconv.Itoa(*v)}
	case float64:
		return []string{strconv.FormatFloat(v, 'g', -1, 64)}
	case decimal.Decimal:
		return []string{v.String()}
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return []string{v.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		return []string{v.UTC().Format(time.RFC3339Nano)}
	case fmt.Stringer:
		return single(strings.TrimSpace(v.String()))
	default:
		return single(strings.TrimSpace(fmt.Sprint(v)))
	}
}

func single(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
