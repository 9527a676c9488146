// Package sanitise strips markup from the free-text fields of intake
// payloads before they reach the registry.
package sanitise

import (
	"errors"
	"reflect"

	"github.com/microcosm-cc/bluemonday"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

const (
	tagName = "sanitise"

	maxPasses = 10
)

var (
	ErrSanitisation         = errors.New("failed sanitisation")
	ErrUnsupportedType      = errors.New("sanitisation type not supported")
	ErrUnstableSanitisation = errors.New("sanitisation unstable")
)

var policy = bluemonday.StrictPolicy()

// Strings sanitises in place the exported string fields of the struct obj
// points to, recursing into nested structs and slices. A field tagged
// `sanitise:"false"` is left as is.
func Strings(obj any) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return errs.Wrap(ErrSanitisation, ErrUnsupportedType)
	}

	err := sanitiseStruct(v.Elem())
	if err != nil {
		return errs.Wrap(ErrSanitisation, err)
	}

	return nil
}

// String strips all markup from value.
func String(value string) (string, error) {
	// Repeat until stable so markup nested in markup does not survive.
	for range maxPasses {
		sanitised := policy.Sanitize(value)
		if sanitised == value {
			return sanitised, nil
		}

		value = sanitised
	}

	return "", ErrUnstableSanitisation
}

func sanitiseStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get(tagName) == "false" {
			continue
		}

		err := sanitiseValue(v.Field(i))
		if err != nil {
			return err
		}
	}

	return nil
}

func sanitiseValue(v reflect.Value) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}

		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		s, err := String(v.String())
		if err != nil {
			return err
		}

		v.SetString(s)
	case reflect.Struct:
		return sanitiseStruct(v)
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			err := sanitiseValue(v.Index(i))
			if err != nil {
				return err
			}
		}
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		return ErrUnsupportedType
	}

	return nil
}
