package store

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rxnsim/internal/engine"
	"github.com/roach88/rxnsim/internal/ir"
	"github.com/roach88/rxnsim/internal/simulate"
)

// marshalFloats converts a vector to canonical JSON TEXT. Non-finite values
// become the strings "NaN", "+Inf" and "-Inf".
func marshalFloats(v []float64) (string, error) {
	if v == nil {
		v = []float64{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal floats: %w", err)
	}
	return string(data), nil
}

func marshalFloat(f float64) (string, error) {
	data, err := ir.MarshalCanonical(f)
	if err != nil {
		return "", fmt.Errorf("marshal float: %w", err)
	}
	return string(data), nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

func marshalAssignments(as []engine.Assignment) (string, error) {
	list := make([]any, len(as))
	for i, a := range as {
		list[i] = map[string]any{
			"slot":     a.Slot,
			"value":    a.Value,
			"variable": a.Variable,
		}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal assignments: %w", err)
	}
	return string(data), nil
}

// marshalConfig stores the config as YAML, the format it is loaded from.
func marshalConfig(cfg simulate.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func unmarshalConfig(data string) (simulate.Config, error) {
	cfg, err := simulate.ParseConfig([]byte(data))
	if err != nil {
		return simulate.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// decodeFloat converts one canonical JSON element back to a float.
func decodeFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		switch val {
		case "NaN":
			return math.NaN(), nil
		case "+Inf":
			return math.Inf(1), nil
		case "-Inf":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func unmarshalFloat(data string) (float64, error) {
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return 0, fmt.Errorf("unmarshal float: %w", err)
	}
	f, err := decodeFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("unmarshal float: %w", err)
	}
	return f, nil
}

func unmarshalFloats(data string) ([]float64, error) {
	var raw []any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal floats: %w", err)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, err := decodeFloat(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal floats: [%d]: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func unmarshalStrings(data string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func unmarshalAssignments(data string) ([]engine.Assignment, error) {
	var raw []struct {
		Slot     int    `json:"slot"`
		Value    any    `json:"value"`
		Variable string `json:"variable"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal assignments: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]engine.Assignment, len(raw))
	for i, a := range raw {
		f, err := decodeFloat(a.Value)
		if err != nil {
			return nil, fmt.Errorf("unmarshal assignments: %s: %w", a.Variable, err)
		}
		out[i] = engine.Assignment{Variable: a.Variable, Slot: a.Slot, Value: f}
	}
	return out, nil
}
