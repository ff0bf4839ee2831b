package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB 以 jsonb 列存储的对象，如配额结构快照
type JSONB map[string]interface{}

// Scan 实现 sql.Scanner；sqlite 返回 string，postgres 返回 []byte
func (j *JSONB) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil || raw == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(raw, j)
}

// Value 实现 driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Decode 将快照解码到具体类型
func (j JSONB) Decode(out interface{}) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("jsonb: 不支持的列类型 %T", value)
	}
}
