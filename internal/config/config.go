// Package config resolves pagecast options from CLI flags, the environment,
// an optional .env file and a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/pagecast/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag. Tags marked ",bare" are also read
// without the prefix.
const EnvPrefix = "PAGECAST_"

// LoadConfig fills opts with precedence CLI flags > environment > .env file >
// TOML file > flag defaults. Flags explicitly set on cmd are never overwritten.
//
// opts must point to a struct. A string field named Config holds the TOML path
// and one named EnvFile the .env path; both may point to missing files.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	// .env only seeds variables that are not already set.
	if envFile := stringField(v, "EnvFile"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if configPath := stringField(v, "Config"); configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			var config map[string]any
			if err := toml.Unmarshal(data, &config); err != nil {
				return fmt.Errorf("failed to parse TOML config: %w", err)
			}
			for i := 0; i < v.NumField(); i++ {
				fieldType := t.Field(i)
				if changedFlags[flagName(fieldType)] {
					continue
				}
				if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(config, tomlPath); value != nil {
						setFieldValue(v.Field(i), value)
					}
				}
			}
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if changedFlags[flagName(fieldType)] {
			continue
		}
		if envValue, ok := lookupEnv(fieldType.Tag.Get("env")); ok {
			if err := setFieldValueFromString(v.Field(i), envValue); err != nil {
				return fmt.Errorf("invalid value for %s: %w", fieldType.Name, err)
			}
		}
	}

	return nil
}

// lookupEnv resolves an env tag such as "YT_RTMP,bare".
func lookupEnv(tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	key, flags, _ := strings.Cut(tag, ",")
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value, true
	}
	if flags == "bare" {
		if value := os.Getenv(key); value != "" {
			return value, true
		}
	}
	return "", false
}

func stringField(v reflect.Value, name string) string {
	if f := v.FieldByName(name); f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return ""
}

// BindFlags registers one flag per field that carries a help tag, bound
// directly to the field. The flag tag overrides the derived name; short and
// default tags are honored.
func BindFlags(flags *pflag.FlagSet, opts any) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		help := fieldType.Tag.Get("help")
		if help == "" {
			continue
		}
		name := flagName(fieldType)
		short := fieldType.Tag.Get("short")
		def := fieldType.Tag.Get("default")
		ptr := v.Field(i).Addr().Interface()

		switch p := ptr.(type) {
		case *string:
			flags.StringVarP(p, name, short, def, help)
		case *bool:
			b := false
			if def != "" {
				parsed, err := strconv.ParseBool(def)
				if err != nil {
					return fmt.Errorf("default for %s: %w", fieldType.Name, err)
				}
				b = parsed
			}
			flags.BoolVarP(p, name, short, b, help)
		case *int:
			n := 0
			if def != "" {
				parsed, err := strconv.Atoi(def)
				if err != nil {
					return fmt.Errorf("default for %s: %w", fieldType.Name, err)
				}
				n = parsed
			}
			flags.IntVarP(p, name, short, n, help)
		case *[]string:
			var items []string
			if def != "" {
				items = splitList(def)
			}
			flags.StringSliceVarP(p, name, short, items, help)
		default:
			return fmt.Errorf("unsupported option type %s for %s", fieldType.Type, fieldType.Name)
		}
	}
	return nil
}

func flagName(field reflect.StructField) string {
	if name := field.Tag.Get("flag"); name != "" {
		return name
	}
	return fieldNameToFlag(field.Name)
}

// fieldNameToFlag converts a struct field name to a CLI flag name, keeping
// acronyms together.
// Example: "LoggingLevel" -> "logging-level", "FPS" -> "fps",
// "AudioURLTemplate" -> "audio-url-template".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var result []rune
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				result = append(result, '-')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue sets a field from a decoded TOML value.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		switch s := value.(type) {
		case string:
			field.SetString(s)
		case int64:
			field.SetString(strconv.FormatInt(s, 10))
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		case float64:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		switch arr := value.(type) {
		case []any:
			slice := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, ok := item.(string); ok {
					slice = append(slice, s)
				}
			}
			field.Set(reflect.ValueOf(slice))
		case string:
			field.Set(reflect.ValueOf(splitList(arr)))
		}
	}
}

// setFieldValueFromString sets a field from an environment value.
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
	case reflect.Int:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(splitList(value)))
		}
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadLoggingConfig reads the [logging] table of a TOML file. Keys other than
// level and format are per-module levels. Returns defaults if the file is
// missing or unreadable.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "auto",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var rawConfig struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &rawConfig); err != nil {
		return cfg
	}

	for key, raw := range rawConfig.Logging {
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
