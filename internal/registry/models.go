package registry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB wraps json.RawMessage for PostgreSQL JSONB columns.
type JSONB json.RawMessage

// Scan implements sql.Scanner for PostgreSQL JSONB type.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(JSONB(nil), v...)
	case string:
		*j = JSONB([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return nil
}

// Value implements driver.Valuer for PostgreSQL JSONB type.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// marshalJSONB marshals v into a JSONB column value, mapping nil to SQL
// NULL rather than the JSON literal "null".
func marshalJSONB(v interface{}) (JSONB, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(b), nil
}

// unmarshalJSONB decodes a JSONB column into target; empty input is a
// no-op so NULL columns leave the target at its zero value.
func unmarshalJSONB(j JSONB, target interface{}) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(j), target)
}
