// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
)

// Bind defines a flag for every field of the struct config points to.
//
// Nested structs add a dotted prefix, so field Filter.ErrorRate becomes
// flag "filter.error-rate". Fields use the tags:
//
//	help:"..."      flag usage
//	default:"..."   default value, $HOME is expanded
//	hidden:"true"   not shown in help and not written by SaveConfig
//	setup:"true"    only used by setup, not written by SaveConfig
//
// Bound flags are always written by SaveConfig.
func Bind(flags *pflag.FlagSet, config interface{}) {
	value := reflect.ValueOf(config)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("invalid config type: %#v", config))
	}
	bindStruct(flags, "", value.Elem())
}

func bindStruct(flags *pflag.FlagSet, prefix string, value reflect.Value) {
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name := prefix + hyphenCase(field.Name)
		fieldValue := value.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			bindStruct(flags, name+".", fieldValue)
			continue
		}

		help := field.Tag.Get("help")
		def := os.Expand(field.Tag.Get("default"), func(key string) string {
			if key == "HOME" {
				return homeDir()
			}
			return os.Getenv(key)
		})
		ptr := fieldValue.Addr().Interface()

		switch p := ptr.(type) {
		case *string:
			flags.StringVar(p, name, def, help)
		case *bool:
			flags.BoolVar(p, name, mustParse(name, def, strconv.ParseBool), help)
		case *int:
			flags.IntVar(p, name, mustParse(name, def, strconv.Atoi), help)
		case *int64:
			flags.Int64Var(p, name, mustParse(name, def, parseInt64), help)
		case *uint32:
			flags.Uint32Var(p, name, uint32(mustParse(name, def, parseUint32)), help)
		case *float64:
			flags.Float64Var(p, name, mustParse(name, def, parseFloat64), help)
		case *time.Duration:
			flags.DurationVar(p, name, mustParse(name, def, time.ParseDuration), help)
		default:
			panic(fmt.Sprintf("unsupported config field %q of type %s", name, field.Type))
		}

		_ = flags.SetAnnotation(name, "user", []string{"true"})
		if field.Tag.Get("setup") == "true" {
			_ = flags.SetAnnotation(name, "setup", []string{"true"})
		}
		if field.Tag.Get("hidden") == "true" {
			_ = flags.MarkHidden(name)
			_ = flags.SetAnnotation(name, "hidden", []string{"true"})
		}
	}
}

func mustParse[T any](name, value string, parse func(string) (T, error)) T {
	var zero T
	if value == "" {
		return zero
	}
	v, err := parse(value)
	if err != nil {
		panic(fmt.Sprintf("invalid default %q for %q: %v", value, name, err))
	}
	return v
}

func parseInt64(s string) (int64, error)     { return strconv.ParseInt(s, 0, 64) }
func parseUint32(s string) (uint64, error)   { return strconv.ParseUint(s, 0, 32) }
func parseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// hyphenCase converts a Go field name into a flag name, "ErrorRate"
// becomes "error-rate" and "TTL" becomes "ttl".
func hyphenCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
