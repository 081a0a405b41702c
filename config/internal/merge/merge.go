/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package merge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const (
	structTOMLAnnotation = "toml"

	// Limits recursion on malformed input. Configuration structs are shallow.
	maxRecursionDepth = 16
)

var (
	ErrDstNotStruct     = errors.New("dst must be a struct or a pointer to a struct")
	ErrUnknownKey       = errors.New("unknown key")
	ErrExceededMaxDepth = fmt.Errorf("exceeded maximum recursion depth of %d", maxRecursionDepth)
)

// Merge sets every field of dst whose TOML name is a key of src. Keys that
// match no field are reported with ErrUnknownKey.
func Merge(dst any, src map[string]any) error {
	if dst == nil {
		return errors.New("dst must not be nil")
	}
	used := make(map[string]bool, len(src))
	if err := mergeWithDepth(reflect.ValueOf(dst), src, used, 0); err != nil {
		return err
	}
	for k := range src {
		if !used[k] {
			return fmt.Errorf("%q: %w", k, ErrUnknownKey)
		}
	}
	return nil
}

func mergeWithDepth(dstVal reflect.Value, src map[string]any, used map[string]bool, depth int) error {
	if depth > maxRecursionDepth {
		return ErrExceededMaxDepth
	}
	if dstVal.Kind() == reflect.Ptr {
		dstVal = dstVal.Elem()
	}
	if dstVal.Kind() != reflect.Struct {
		return ErrDstNotStruct
	}

	dstType := dstVal.Type()
	for i := range dstType.NumField() {
		fieldVal := dstVal.Field(i)
		fieldType := dstType.Field(i)
		name, _, _ := strings.Cut(fieldType.Tag.Get(structTOMLAnnotation), ",")

		if name == "" {
			// Embedded structs share the enclosing table.
			if fieldType.Anonymous && fieldType.Type.Kind() == reflect.Struct {
				if err := mergeWithDepth(fieldVal, src, used, depth+1); err != nil {
					return err
				}
			}
			continue
		}

		srcAnyVal, ok := src[name]
		if !ok {
			continue
		}
		used[name] = true

		if fieldType.Type.Kind() == reflect.Struct {
			table, ok := srcAnyVal.(map[string]any)
			if !ok {
				return fmt.Errorf("value of %q is %T, not a table", name, srcAnyVal)
			}
			tableUsed := make(map[string]bool, len(table))
			if err := mergeWithDepth(fieldVal, table, tableUsed, depth+1); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			for k := range table {
				if !tableUsed[k] {
					return fmt.Errorf("%q: %w", name+"."+k, ErrUnknownKey)
				}
			}
			continue
		}
		if err := setValue(fieldVal, srcAnyVal); err != nil {
			return fmt.Errorf("error setting value of %q: %w", name, err)
		}
	}
	return nil
}

// setValue sets a reflect.Value to the given value, handling type conversions
// between numeric kinds.
func setValue(dst reflect.Value, src any) error {
	srcVal := reflect.ValueOf(src)
	if !srcVal.IsValid() {
		return errors.New("value is nil")
	}
	dstType := dst.Type()

	if srcVal.Type().AssignableTo(dstType) {
		dst.Set(srcVal)
		return nil
	}
	if isNumeric(srcVal.Kind()) && isNumeric(dstType.Kind()) {
		dst.Set(srcVal.Convert(dstType))
		return nil
	}
	return fmt.Errorf("%T cannot be cast to %s", src, dstType.String())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
