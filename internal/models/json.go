package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList is a list of strings persisted as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalJSON(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	return unmarshalJSON(src, l)
}

// Flags is a set of named boolean switches persisted as a JSON object.
type Flags map[string]bool

// Value implements driver.Valuer.
func (f Flags) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	return marshalJSON(f)
}

// Scan implements sql.Scanner.
func (f *Flags) Scan(src interface{}) error {
	return unmarshalJSON(src, f)
}

// Enabled reports whether the named flag is set.
func (f Flags) Enabled(name string) bool {
	return f[name]
}

func marshalJSON(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	return json.Unmarshal(data, dst)
}
