package jexl

import (
	"encoding/json"
	"fmt"
	"math"
)

func builtinTransforms() map[string]Transform {
	return map[string]Transform{
		"mapby":      mapBy,
		"intersects": intersectsTransform,
		"flatten":    flatten,
		"min":        aggregate(math.Min),
		"max":        aggregate(math.Max),
		"sum":        sum,
		"count":      count,
		"round":      round,
		"ceil":       numeric("ceil", math.Ceil),
		"floor":      numeric("floor", math.Floor),
		"stringify":  stringify,
		"debug":      func(subject any, _ []any) (any, error) { return subject, nil },
	}
}

// mapBy projects a list of rows onto one key, or onto a list of keys.
func mapBy(subject any, args []any) (any, error) {
	if !isList(subject) {
		return nil, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("mapby requires at least one key")
	}

	rows := ToList(subject)
	result := make([]any, 0, len(rows))

	for _, row := range rows {
		if len(args) == 1 {
			result = append(result, property(row, args[0]))
			continue
		}

		values := make([]any, 0, len(args))
		for _, key := range args {
			values = append(values, property(row, key))
		}

		result = append(result, values)
	}

	return result, nil
}

func intersectsTransform(subject any, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("intersects requires exactly one argument, got %d", len(args))
	}

	return intersects(subject, args[0]), nil
}

func flatten(subject any, _ []any) (any, error) {
	if !isList(subject) {
		return subject, nil
	}

	var result []any

	for _, item := range ToList(subject) {
		if isList(item) {
			result = append(result, ToList(item)...)
			continue
		}

		result = append(result, item)
	}

	if result == nil {
		result = []any{}
	}

	return result, nil
}

func numbers(subject any) ([]float64, error) {
	var result []float64

	for _, item := range ToList(subject) {
		if item == nil {
			continue
		}

		n, ok := toNumber(item)
		if !ok {
			return nil, typeError("expected numbers, got %s", describe(item))
		}

		result = append(result, n)
	}

	return result, nil
}

func aggregate(pick func(a, b float64) float64) Transform {
	return func(subject any, _ []any) (any, error) {
		values, err := numbers(subject)
		if err != nil {
			return nil, err
		}

		if len(values) == 0 {
			return nil, nil
		}

		result := values[0]
		for _, v := range values[1:] {
			result = pick(result, v)
		}

		return result, nil
	}
}

func sum(subject any, _ []any) (any, error) {
	values, err := numbers(subject)
	if err != nil {
		return nil, err
	}

	total := 0.0
	for _, v := range values {
		total += v
	}

	return total, nil
}

func count(subject any, _ []any) (any, error) {
	if s, ok := subject.(string); ok {
		return float64(len([]rune(s))), nil
	}

	if subject == nil {
		return 0.0, nil
	}

	return float64(len(ToList(subject))), nil
}

func round(subject any, args []any) (any, error) {
	if subject == nil {
		return nil, nil
	}

	n, ok := toNumber(subject)
	if !ok {
		return nil, typeError("round expects a number, got %s", describe(subject))
	}

	digits := 0.0
	if len(args) > 0 {
		if d, ok := toNumber(args[0]); ok {
			digits = d
		}
	}

	scale := math.Pow(10, digits)

	return math.Round(n*scale) / scale, nil
}

func numeric(name string, fn func(float64) float64) Transform {
	return func(subject any, _ []any) (any, error) {
		if subject == nil {
			return nil, nil
		}

		n, ok := toNumber(subject)
		if !ok {
			return nil, typeError("%s expects a number, got %s", name, describe(subject))
		}

		return fn(n), nil
	}
}

func stringify(subject any, _ []any) (any, error) {
	data, err := json.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("stringify: %w", err)
	}

	return string(data), nil
}
