// Package config loads aggregation definitions from YAML and overlays
// scalar settings from environment variables.
//
// Environment variable names follow the pattern:
//
//	{Prefix}_{STAGE}_{FIELD}
//
// For named nested structs, the field name becomes a path segment:
//
//	{Prefix}_{STAGE}_{STRUCT}_{FIELD}
//
// Anonymous (embedded) struct fields are flattened and do not add a segment.
//
// Go field names are converted from CamelCase to UPPER_SNAKE_CASE:
//
//	CompletionSize     → COMPLETION_SIZE
//	ShutdownTimeout    → SHUTDOWN_TIMEOUT
//	DiscardOnTimeout   → DISCARD_ON_TIMEOUT
//
// Supported field types: string, bool, int*, uint*, float*, time.Duration and
// types implementing encoding.TextUnmarshaler. Values are decoded with
// mapstructure's weak typing. Fields with other types (functions, interfaces,
// channels, pointers) are skipped.
//
// Example with aggregate.Config and stage "orders":
//
//	GOAGGREGATE_ORDERS_COMPLETION_SIZE=5
//	GOAGGREGATE_ORDERS_COMPLETION_TIMEOUT=500ms
//	GOAGGREGATE_ORDERS_TIMEOUT_FROM=creation
//
// Example with pipe.Config and stage "orders_pipe":
//
//	GOAGGREGATE_ORDERS_PIPE_CONCURRENCY=4
//	GOAGGREGATE_ORDERS_PIPE_SHUTDOWN_TIMEOUT=5s
package config

import (
	"encoding"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/mitchellh/mapstructure"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// DefaultPrefix is the variable name prefix used when Loader.Prefix is empty.
const DefaultPrefix = "GOAGGREGATE"

// Loader reads environment variables into configuration structs.
type Loader struct {
	// Prefix for environment variable names.
	// Default: DefaultPrefix.
	Prefix string

	lookup func(string) (string, bool)
}

// Load overlays environment variables onto the struct pointed to by dst.
// The stage names the aggregation or pipe stage and becomes the second
// segment of each variable name. Fields without a variable keep their value.
func (l Loader) Load(stage string, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: dst must be a pointer to a struct, got %T", dst)
	}
	root := v.Elem()
	for _, f := range fields(l.stagePrefix(stage), root.Type(), nil) {
		raw, ok := l.lookupEnv(f.key)
		if !ok {
			continue
		}
		if err := decode(raw, root.FieldByIndex(f.index)); err != nil {
			return fmt.Errorf("config: %s: %w", f.key, err)
		}
	}
	return nil
}

// Keys lists the variable names Load checks for dst, a struct or a pointer to one.
func (l Loader) Keys(stage string, dst any) []string {
	t := reflect.TypeOf(dst)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	fs := fields(l.stagePrefix(stage), t, nil)
	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.key
	}
	return keys
}

// Load populates dst using the default Loader.
func Load(stage string, dst any) error {
	return Loader{}.Load(stage, dst)
}

// Keys returns env var names using the default Loader.
func Keys(stage string, dst any) []string {
	return Loader{}.Keys(stage, dst)
}

func (l Loader) stagePrefix(stage string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "_" + normalizeStage(stage)
}

func (l Loader) lookupEnv(key string) (string, bool) {
	if l.lookup != nil {
		return l.lookup(key)
	}
	return os.LookupEnv(key)
}

type field struct {
	key   string
	index []int
}

// fields walks t depth first. Embedded structs are flattened, named structs
// add a path segment. Unexported embedded structs still promote their fields.
func fields(prefix string, t reflect.Type, parent []int) []field {
	var out []field
	for i := range t.NumField() {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if !sf.IsExported() {
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				out = append(out, fields(prefix, sf.Type, index)...)
			}
			continue
		}

		key := prefix
		if !sf.Anonymous {
			key += "_" + toUpperSnake(sf.Name)
		}

		switch {
		case sf.Type == durationType, reflect.PointerTo(sf.Type).Implements(textUnmarshalerType):
			out = append(out, field{key: key, index: index})
		case sf.Type.Kind() == reflect.Struct:
			out = append(out, fields(key, sf.Type, index)...)
		case scalar(sf.Type.Kind()):
			out = append(out, field{key: key, index: index})
		}
	}
	return out
}

func scalar(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func decode(raw string, v reflect.Value) error {
	if raw == "" && v.Kind() != reflect.String && !reflect.PointerTo(v.Type()).Implements(textUnmarshalerType) {
		return fmt.Errorf("empty value for %s", v.Type())
	}
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			unmarshalTextHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result: v.Addr().Interface(),
	})
	if err != nil {
		return err
	}
	return d.Decode(raw)
}

func unmarshalTextHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || !reflect.PointerTo(to).Implements(textUnmarshalerType) {
		return data, nil
	}
	v := reflect.New(to)
	if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(data.(string))); err != nil {
		return nil, err
	}
	return v.Elem().Interface(), nil
}

// normalizeStage uppercases s, maps hyphens and spaces to underscores and
// drops anything else that is not a letter or digit.
func normalizeStage(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return unicode.ToUpper(r)
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == '-' || r == ' ':
			return '_'
		}
		return -1
	}, s)
}

// toUpperSnake converts a CamelCase field name, keeping acronyms together:
//
//	URLPath → URL_PATH
func toUpperSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
