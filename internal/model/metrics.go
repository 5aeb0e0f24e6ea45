package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Metric is one named form measurement. Value is a float64 for numeric
// measurements; anything else the service sends is kept as decoded.
type Metric struct {
	Key   string
	Value any
}

// Metrics is a metric mapping that keeps the order the service produced the
// keys in. Keys are unique.
type Metrics []Metric

// Get returns the value stored under key.
func (m Metrics) Get(key string) (any, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Float returns the numeric value stored under key.
func (m Metrics) Float(key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Keys returns the metric keys in order.
func (m Metrics) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// UnmarshalJSON decodes a JSON object token by token so that key order is
// preserved. A repeated key keeps its first position and its last value.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: decode metrics")
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.Errorf("model: metrics must be an object, got %v", tok)
	}

	out := Metrics{}
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: decode metric key")
		}
		key, _ := keyTok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return eris.Wrapf(err, "model: decode metric %q", key)
		}
		value := metricValue(raw)

		if i, dup := index[key]; dup {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, Metric{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "model: decode metrics end")
	}

	*m = out
	return nil
}

// MarshalJSON writes the metrics as a JSON object in stored order.
func (m Metrics) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, eris.Wrap(err, "model: encode metric key")
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "model: encode metric %q", e.Key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML emits an ordered mapping node.
func (m Metrics) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range m {
		var val yaml.Node
		if err := val.Encode(e.Value); err != nil {
			return nil, eris.Wrapf(err, "model: encode metric %q", e.Key)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&val,
		)
	}
	return node, nil
}

func metricValue(raw any) any {
	n, ok := raw.(json.Number)
	if !ok {
		return raw
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		return f
	}
	return n.String()
}
