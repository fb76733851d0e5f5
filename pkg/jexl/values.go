package jexl

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

var errDivisionByZero = errors.New("division by zero")

// Truthy applies JEXL truthiness: null, false, zero, NaN, empty strings and empty
// collections are false, everything else is true.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}

	if n, ok := toNumber(value); ok {
		return n != 0 && !math.IsNaN(n)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}

	return true
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}

	return 0, false
}

// ToList converts slices of any element type to []any. Nil yields an empty list
// and a non-list value is returned as a one element list.
func ToList(value any) []any {
	if value == nil {
		return []any{}
	}

	if list, ok := value.([]any); ok {
		return list
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}

	return list
}

func isList(value any) bool {
	if value == nil {
		return false
	}

	kind := reflect.ValueOf(value).Kind()

	return kind == reflect.Slice || kind == reflect.Array
}

func describe(value any) string {
	if value == nil {
		return "null"
	}

	return fmt.Sprintf("%T", value)
}

// property resolves obj[key] for maps and lists; anything else yields nil.
func property(obj, key any) any {
	if obj == nil {
		return nil
	}

	switch o := obj.(type) {
	case map[string]any:
		name, ok := key.(string)
		if !ok {
			name = fmt.Sprint(key)
		}
		return o[name]
	case map[string]string:
		name, _ := key.(string)
		if v, ok := o[name]; ok {
			return v
		}
		return nil
	}

	rv := reflect.ValueOf(obj)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		idx, ok := toNumber(key)
		if !ok || idx != math.Trunc(idx) {
			if name, isString := key.(string); isString && name == "length" {
				return float64(rv.Len())
			}
			return nil
		}

		i := int(idx)
		if i < 0 {
			i += rv.Len()
		}

		if i < 0 || i >= rv.Len() {
			return nil
		}

		return rv.Index(i).Interface()
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}

		name, ok := key.(string)
		if !ok {
			return nil
		}

		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}

		return v.Interface()
	}

	return nil
}

// Equal compares two values, treating all numeric types alike.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	an, aok := toNumber(a)
	bn, bok := toNumber(b)

	if aok || bok {
		return aok && bok && an == bn
	}

	if isList(a) && isList(b) {
		la, lb := ToList(a), ToList(b)
		if len(la) != len(lb) {
			return false
		}

		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}

		return true
	}

	return reflect.DeepEqual(a, b)
}

func contains(list []any, value any) bool {
	for _, item := range list {
		if Equal(item, value) {
			return true
		}
	}

	return false
}

func intersects(a, b any) bool {
	left, right := ToList(a), ToList(b)

	for _, item := range left {
		if contains(right, item) {
			return true
		}
	}

	return false
}

func applyBinary(op string, left, right any) (any, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "in":
		return within(left, right)
	case "intersects":
		return intersects(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(op, left, right)
	case "+":
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)

	if !lok || !rok {
		return nil, typeError("operator %s not defined for %s and %s", op, describe(left), describe(right))
	}

	switch op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, errDivisionByZero
		}
		return ln / rn, nil
	case "//":
		if rn == 0 {
			return nil, errDivisionByZero
		}
		return math.Floor(ln / rn), nil
	case "%":
		if rn == 0 {
			return nil, errDivisionByZero
		}
		return ln - rn*math.Floor(ln/rn), nil
	case "^":
		return math.Pow(ln, rn), nil
	}

	return nil, fmt.Errorf("unsupported operator %s", op)
}

func within(needle, haystack any) (any, error) {
	if haystack == nil {
		return false, nil
	}

	if s, ok := haystack.(string); ok {
		sub, ok := needle.(string)
		if !ok {
			return nil, typeError("left side of 'in' must be a string when searching a string, got %s", describe(needle))
		}
		return strings.Contains(s, sub), nil
	}

	if isList(haystack) {
		return contains(ToList(haystack), needle), nil
	}

	rv := reflect.ValueOf(haystack)
	if rv.Kind() == reflect.Map {
		return mapHasKey(rv, needle), nil
	}

	return nil, typeError("right side of 'in' must be a list, string or object, got %s", describe(haystack))
}

func mapHasKey(rv reflect.Value, key any) bool {
	name, ok := key.(string)
	if !ok || rv.Type().Key().Kind() != reflect.String {
		return false
	}

	return rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())).IsValid()
}

func compare(op string, left, right any) (any, error) {
	var cmp int

	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	ls, lstr := left.(string)
	rs, rstr := right.(string)

	switch {
	case lok && rok:
		switch {
		case ln < rn:
			cmp = -1
		case ln > rn:
			cmp = 1
		}
	case lstr && rstr:
		cmp = strings.Compare(ls, rs)
	default:
		return nil, typeError("cannot compare %s with %s", describe(left), describe(right))
	}

	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}
