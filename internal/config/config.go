package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lwalight/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag when reading environment variables.
const EnvPrefix = "LWALIGHT_"

// LoadConfig overlays the options file and the environment onto opts, a
// pointer to a struct whose fields carry `toml` and `env` tags. Precedence is
// CLI flag > LWALIGHT_* variable > file > default; a field whose flag was set
// on the command line is left alone.
//
// A missing file is not an error. An unreadable or malformed file, or a value
// that does not fit its field, is.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()
	fromCLI := changedFlags(cmd)

	var configPath string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		configPath = f.String()
	}
	file, err := readOptionsFile(configPath)
	if err != nil {
		return err
	}

	for i := range v.NumField() {
		field, sf := v.Field(i), t.Field(i)
		if fromCLI[fieldNameToFlag(sf.Name)] {
			continue
		}

		if path := sf.Tag.Get("toml"); path != "" && file != nil {
			if raw := getNestedValue(file, path); raw != nil {
				if err := setFieldValue(field, raw); err != nil {
					return fmt.Errorf("%s: %s: %w", configPath, path, err)
				}
			}
		}

		if key := sf.Tag.Get("env"); key != "" {
			if s := os.Getenv(EnvPrefix + key); s != "" {
				if err := setFieldValueFromString(field, s); err != nil {
					return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
				}
			}
		}
	}
	return nil
}

// changedFlags lists the flags set explicitly on the command line. Root
// options are persistent flags, so both sets are visited.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	mark := func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	}
	cmd.Flags().VisitAll(mark)
	cmd.PersistentFlags().VisitAll(mark)
	return changed
}

func readOptionsFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var file map[string]any
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}
	return file, nil
}

// ApplyDefaults fills zero-valued fields of opts from their default tags.
// humacli does this for flags; ApplyDefaults serves callers that build options directly.
func ApplyDefaults(opts any) {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()
	for i := range v.NumField() {
		def, ok := t.Field(i).Tag.Lookup("default")
		if !ok || !v.Field(i).IsZero() {
			continue
		}
		_ = setFieldValueFromString(v.Field(i), def)
	}
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "DeviceSerial" -> "device-serial".
func fieldNameToFlag(fieldName string) string {
	var b strings.Builder
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue looks up a dotted path such as "device.kind".
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := data[part].(map[string]any)
		if !ok {
			return nil
		}
		data = next
	}
	return data[parts[len(parts)-1]]
}

// setFieldValue stores a decoded TOML value. Arrays of strings fit both
// []string fields and comma-separated string fields.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		switch v := value.(type) {
		case string:
			field.SetString(v)
			return nil
		case []any:
			parts, err := stringItems(v)
			if err != nil {
				return err
			}
			field.SetString(strings.Join(parts, ","))
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int64:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
			return nil
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
			return nil
		case int64:
			field.SetFloat(float64(n))
			return nil
		}
	case reflect.Slice:
		if arr, ok := value.([]any); ok && field.Type().Elem().Kind() == reflect.String {
			parts, err := stringItems(arr)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(parts))
			return nil
		}
	}
	return fmt.Errorf("cannot use %T as %s", value, field.Type())
}

func stringItems(arr []any) ([]string, error) {
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("array item %v is not a string", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// setFieldValueFromString parses an environment or default-tag value.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported field type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table of the options file. Keys other
// than level and format are module levels. Any problem with the file yields
// the defaults; LoadConfig reports it.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	file, err := readOptionsFile(configPath)
	if err != nil || file == nil {
		return cfg
	}
	table, ok := file["logging"].(map[string]any)
	if !ok {
		return cfg
	}

	for key, raw := range table {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
