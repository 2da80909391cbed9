package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// scanJSONColumn decodes a JSON column value into dst. Postgres and MySQL
// return []byte, SQLite may return string.
func scanJSONColumn(value any, dst any) (bool, error) {
	var b []byte
	switch v := value.(type) {
	case nil:
		return false, nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return false, fmt.Errorf("json column: expected []byte or string, got %T", value)
	}
	if len(b) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

// ModelParams holds the per-model default request parameters stored in the
// params column of the models table. Unknown keys are ignored.
type ModelParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	// Stop holds stop sequences as stored, i.e. with escape sequences
	// such as "\n" kept as literal backslash text.
	Stop []string `json:"stop,omitempty"`
}

func (p ModelParams) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *ModelParams) Scan(value any) error {
	*p = ModelParams{}
	_, err := scanJSONColumn(value, p)
	return err
}
