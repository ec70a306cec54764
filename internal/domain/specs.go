package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Specs is the canonical key/value form of a product's technical details.
// It is stored as a JSON object.
type Specs map[string]string

// ParseSpecs accepts a mapping, a JSON-encoded object, or newline separated
// "key: value" text. Anything it cannot understand becomes an empty mapping.
func ParseSpecs(v any) Specs {
	out := Specs{}
	switch t := v.(type) {
	case nil:
	case Specs:
		for k, val := range t {
			out.set(k, val)
		}
	case map[string]string:
		for k, val := range t {
			out.set(k, val)
		}
	case map[string]any:
		for k, val := range t {
			out.set(k, scalar(val))
		}
	case []byte:
		return ParseSpecs(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return out
		}
		if strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return Specs{}
			}
			return ParseSpecs(m)
		}
		for _, line := range strings.Split(s, "\n") {
			k, val, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			out.set(k, val)
		}
	}
	return out
}

func (s Specs) set(k, v string) {
	k = strings.TrimSpace(k)
	if k == "" {
		return
	}
	s[k] = strings.TrimSpace(v)
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func (s Specs) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan tolerates legacy rows: a malformed column yields an empty mapping.
func (s *Specs) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		*s = Specs{}
	case string:
		*s = ParseSpecs(t)
	case []byte:
		*s = ParseSpecs(string(t))
	default:
		*s = Specs{}
	}
	return nil
}
