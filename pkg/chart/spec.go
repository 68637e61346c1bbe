package chart

import (
	"encoding/json"
	"fmt"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// validateSpec checks the parts of the chart spec the orchestrator relies
// on. Everything else is passed through to the client bundle untouched.
func validateSpec(spec map[string]any) error {
	if spec == nil {
		return errors.New(errors.ErrCodeValidation, "config is required")
	}

	data, ok := asSlice(spec["data"])
	if !ok {
		return errors.New(errors.ErrCodeValidation, "config.data must be an array")
	}
	if len(data) == 0 {
		return errors.New(errors.ErrCodeValidation, "config.data must contain at least one data point")
	}
	for i, point := range data {
		if _, ok := point.(map[string]any); !ok {
			return errors.New(errors.ErrCodeValidation, "config.data[%d] must be an object", i)
		}
	}

	raw, present := spec["series"]
	if !present || raw == nil {
		return nil
	}
	series, ok := asSlice(raw)
	if !ok {
		return errors.New(errors.ErrCodeValidation, "config.series must be an array")
	}
	for i, s := range series {
		if err := validateSeries(i, s); err != nil {
			return err
		}
	}
	return nil
}

func validateSeries(i int, v any) error {
	s, ok := v.(map[string]any)
	if !ok {
		return errors.New(errors.ErrCodeValidation, "config.series[%d] must be an object", i)
	}
	if key, _ := s["key"].(string); key == "" {
		return errors.New(errors.ErrCodeValidation, "config.series[%d].key is required", i)
	}
	if c, present := s["color"]; present {
		color, ok := c.(string)
		if !ok {
			return errors.New(errors.ErrCodeValidation, "config.series[%d].color must be a string", i)
		}
		if err := errors.ValidateCSSColor(fmt.Sprintf("config.series[%d].color", i), color); err != nil {
			return err
		}
	}
	if o, present := s["opacity"]; present {
		f, ok := asFloat(o)
		if !ok || f < 0 || f > 1 {
			return errors.New(errors.ErrCodeValidation, "config.series[%d].opacity must be a number between 0 and 1", i)
		}
	}
	return nil
}

// asSlice accepts decoded JSON arrays and the typed slice programmatic
// callers tend to build.
func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		s := make([]any, len(t))
		for i, m := range t {
			s[i] = m
		}
		return s, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}
