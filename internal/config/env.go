package config

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "PANPAD_"

// EnvLoader applies environment variable overrides to a Config.
//
// Every leaf setting has one variable: the prefix followed by its
// upper-cased toml path with dots replaced by underscores, so
// tuning.hold_window is PANPAD_TUNING_HOLD_WINDOW.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates a loader reading the process environment.
// The prefix should include the trailing underscore (e.g., "PANPAD_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: os.LookupEnv}
}

// NewEnvLoaderWithLookup creates a loader with a custom variable source.
func NewEnvLoaderWithLookup(prefix string, lookup func(string) (string, bool)) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: lookup}
}

// Apply overrides cfg in place and returns the variables it used, sorted.
// cfg must not have been published yet.
func (l *EnvLoader) Apply(cfg *Config) ([]string, error) {
	var applied []string
	err := walkFields(reflect.ValueOf(cfg).Elem(), nil, func(path []string, field reflect.Value) error {
		name := l.envName(path)
		raw, ok := l.lookup(name)
		if !ok {
			return nil
		}
		if err := setField(field, raw); err != nil {
			return &ValidationError{Field: strings.Join(path, "."), Message: fmt.Sprintf("from %s: %v", name, err), Value: raw}
		}
		applied = append(applied, name)
		return nil
	})
	sort.Strings(applied)
	return applied, err
}

// Names lists every variable the loader understands.
func (l *EnvLoader) Names() []string {
	var names []string
	_ = walkFields(reflect.ValueOf(Default()).Elem(), nil, func(path []string, _ reflect.Value) error {
		names = append(names, l.envName(path))
		return nil
	})
	sort.Strings(names)
	return names
}

// envName converts ["tuning", "hold_window"] to PANPAD_TUNING_HOLD_WINDOW.
func (l *EnvLoader) envName(path []string) string {
	return l.prefix + strings.ToUpper(strings.Join(path, "_"))
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// walkFields visits every leaf field carrying a toml tag.
func walkFields(v reflect.Value, path []string, fn func(path []string, field reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}
		fv := v.Field(i)
		fieldPath := append(append([]string(nil), path...), name)

		if fv.Kind() == reflect.Struct && !reflect.PointerTo(fv.Type()).Implements(textUnmarshalerType) {
			if err := walkFields(fv, fieldPath, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(fieldPath, fv); err != nil {
			return err
		}
	}
	return nil
}

// setField parses raw into a leaf field.
func setField(field reflect.Value, raw string) error {
	if tu, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return tu.UnmarshalText([]byte(raw))
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported setting type %s", field.Type())
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
