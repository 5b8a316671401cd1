package main

import (
	"fmt"
	"os"

	appErr "memprobe/pkg/errors"

	"gopkg.in/yaml.v3"
)

func loadLayered(paths []string) (map[string]interface{}, error) {
	merged := map[string]interface{}{}
	for _, path := range paths {
		value, err := loadYAML(path)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		merged, err = mergeMap(merged, normalizeValue(value))
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "merge %s failed", path)
		}
	}
	return merged, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigLoadFailed, "read config file failed")
	}

	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "parse config file %s failed", path)
	}
	return value, nil
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return value
	}
}

func mergeMap(base map[string]interface{}, override interface{}) (map[string]interface{}, error) {
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, appErr.New(appErr.ConfigInvalid).WithMessage("config root is not a mapping")
	}

	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}

	for key, overrideValue := range overrideMap {
		baseChild, baseIsMap := merged[key].(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := mergeMap(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}
