package flaky

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ConfigMap is the free-form, insertion-ordered configuration attached to a test.
// Values are anything that survives a JSON round trip. The zero value is empty and ready to use.
type ConfigMap struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewConfigMap creates an empty ConfigMap
func NewConfigMap() *ConfigMap {
	return &ConfigMap{m: orderedmap.New[string, any]()}
}

// Get returns the value stored under key
func (c *ConfigMap) Get(key string) (any, bool) {
	if c == nil || c.m == nil {
		return nil, false
	}
	return c.m.Get(key)
}

// Set stores value under key, keeping the key's original position if it already exists
func (c *ConfigMap) Set(key string, value any) {
	if c.m == nil {
		c.m = orderedmap.New[string, any]()
	}
	c.m.Set(key, value)
}

// Delete removes key and reports whether it was present
func (c *ConfigMap) Delete(key string) bool {
	if c == nil || c.m == nil {
		return false
	}
	_, present := c.m.Delete(key)
	return present
}

// Len returns the number of keys
func (c *ConfigMap) Len() int {
	if c == nil || c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Keys returns the keys in insertion order
func (c *ConfigMap) Keys() []string {
	if c == nil || c.m == nil {
		return nil
	}
	keys := make([]string, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns a shallow copy that can be mutated without affecting c
func (c *ConfigMap) Clone() *ConfigMap {
	clone := NewConfigMap()
	if c == nil || c.m == nil {
		return clone
	}
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		clone.m.Set(pair.Key, pair.Value)
	}
	return clone
}

func (c *ConfigMap) MarshalJSON() ([]byte, error) {
	if c == nil || c.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.m)
}

func (c *ConfigMap) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, any]()
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	c.m = m
	return nil
}
