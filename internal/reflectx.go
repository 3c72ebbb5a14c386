package internal

import (
	"reflect"
	"strings"
)

// FieldTag is the parsed form of `hessian:"<name>[,omitempty]"`.
type FieldTag struct {
	Name      string
	OmitEmpty bool
}

// ParseFieldTag parses the hessian struct tag of f. ok is false for
// unexported fields and fields tagged "-". A missing name defaults to the
// Go field name with its first letter lower-cased.
func ParseFieldTag(f reflect.StructField) (FieldTag, bool) {
	if !f.IsExported() {
		return FieldTag{}, false
	}
	tag := f.Tag.Get("hessian")
	if tag == "-" {
		return FieldTag{}, false
	}
	parts := strings.Split(tag, ",")
	ft := FieldTag{Name: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		if strings.TrimSpace(p) == "omitempty" {
			ft.OmitEmpty = true
		}
	}
	if ft.Name == "" {
		ft.Name = strings.ToLower(f.Name[:1]) + f.Name[1:]
	}
	return ft, true
}

// IsZero reports whether v holds its type's zero value, treating empty
// slices and maps as zero.
func IsZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
