package dynamicconfig

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

func convertInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, errValueType(val, "int")
	}
}

func convertFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errValueType(val, "float64")
	}
}

func convertBool(val interface{}) (bool, error) {
	if v, ok := val.(bool); ok {
		return v, nil
	}
	return false, errValueType(val, "bool")
}

func convertDuration(val interface{}) (time.Duration, error) {
	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("failed to parse duration %q: %w", v, err)
		}
		return d, nil
	case int:
		// plain yaml numbers are interpreted as seconds
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, errValueType(val, "duration")
	}
}

func convertMap(val interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := mapstructure.Decode(val, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errValueType(val, "map")
	}
	return out, nil
}

// DecodeStructured converts a map-shaped dynamic config value into the given
// struct pointer using weak typing, so yaml scalars coerce where sensible.
func DecodeStructured(val interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(val)
}

func errValueType(val interface{}, expected string) error {
	return fmt.Errorf("value type %T cannot be converted to %s", val, expected)
}
