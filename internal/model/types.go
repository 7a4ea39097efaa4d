package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Int64Array 用于 JSON 数组字段（分期 ID 列表）
type Int64Array []int64

func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (a *Int64Array) Scan(value interface{}) error {
	if value == nil {
		*a = Int64Array{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Int64Array source %T", value)
	}
	if len(data) == 0 {
		*a = Int64Array{}
		return nil
	}
	return json.Unmarshal(data, a)
}

// Contains 是否包含指定 ID
func (a Int64Array) Contains(id int64) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

// Overlaps 两个 ID 集合是否有交集
func (a Int64Array) Overlaps(ids []int64) bool {
	for _, id := range ids {
		if a.Contains(id) {
			return true
		}
	}
	return false
}
