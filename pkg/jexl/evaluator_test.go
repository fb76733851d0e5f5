package jexl

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Values(t *testing.T) {
	ctx := NewContext(map[string]any{
		"form": "main",
		"info": map[string]any{
			"case":   map[string]any{"created_by_group": "admins"},
			"parent": nil,
		},
		"list": []any{"a", "b"},
		"rows": []any{
			map[string]any{"name": "x", "size": 1.0},
			map[string]any{"name": "y", "size": 2.0},
		},
	})

	tests := []struct {
		name       string
		expression string
		expected   any
	}{
		{"addition", "1 + 2", 3.0},
		{"string concatenation", "'a' + \"b\"", "ab"},
		{"floor division", "7 // 2", 3.0},
		{"power", "2 ^ 3", 8.0},
		{"modulo", "10 % 3", 1.0},
		{"precedence", "1 + 2 * 3", 7.0},
		{"unary minus", "-3 + 1", -2.0},
		{"comparison", "1 < 2", true},
		{"string comparison", "'b' >= 'a'", true},
		{"equality across literals", "1 == 1.0", true},
		{"inequality", "'a' != 'a'", false},
		{"and", "true && false", false},
		{"or yields boolean", "0 || 'x'", true},
		{"null is falsy", "null || false", false},
		{"not", "!''", true},
		{"empty list is falsy", "![]", true},
		{"ternary", "1 > 0 ? 'yes' : 'no'", "yes"},
		{"in list", "'a' in ['a', 'b']", true},
		{"in string", "'ell' in 'hello'", true},
		{"in object", "'x' in {x: 1}", true},
		{"in null", "'x' in null", false},
		{"member access", "info.case.created_by_group", "admins"},
		{"member of null", "info.parent.form", nil},
		{"bracket access", "info['case']['created_by_group']", "admins"},
		{"index access", "list[1]", "b"},
		{"index out of range", "list[5]", nil},
		{"undefined identifier", "unknown", nil},
		{"array literal", "[1, 'a']", []any{1.0, "a"}},
		{"object literal", "{a: 1, 'b': 'c'}", map[string]any{"a": 1.0, "b": "c"}},
		{"flatten", "[[1, 2], [3], 4]|flatten", []any{1.0, 2.0, 3.0, 4.0}},
		{"mapby", "rows|mapby('name')", []any{"x", "y"}},
		{"mapby several keys", "rows|mapby('name', 'size')", []any{[]any{"x", 1.0}, []any{"y", 2.0}}},
		{"mapby on null", "null|mapby('name')", nil},
		{"max", "[1, 5, 3]|max", 5.0},
		{"min", "rows|mapby('size')|min", 1.0},
		{"min of empty", "[]|min", nil},
		{"sum", "[1, 2, null]|sum", 3.0},
		{"count list", "list|count", 2.0},
		{"count string", "'abc'|count", 3.0},
		{"round", "1.26|round(1)", 1.3},
		{"ceil", "1.2|ceil", 2.0},
		{"floor", "1.8|floor", 1.0},
		{"stringify", "['a', 1]|stringify", `["a",1]`},
		{"debug is identity", "form|debug", "main"},
		{"intersects transform", "['a', 'b']|intersects(['b'])", true},
		{"intersects operator", "['a'] intersects ['c']", false},
		{"intersects scalar", "'a' intersects ['a']", true},
		{"parenthesized", "(1 + 2) * 2", 6.0},
		{"nested ternary", "false ? 1 : true ? 2 : 3", 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.expression, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_EmptyExpression(t *testing.T) {
	result, err := Evaluate("  ", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEvaluate_ContextTransforms(t *testing.T) {
	answers := map[string]any{"color": "red", "sizes": []any{"s", "m"}}

	ctx := NewContext(nil).WithTransform("answer", func(subject any, _ []any) (any, error) {
		slug, _ := subject.(string)
		value, ok := answers[slug]
		if !ok {
			return nil, &QuestionMissingError{Question: slug, Form: "main"}
		}
		return value, nil
	})

	ok, err := EvaluateBool("'color'|answer == 'red' && 'm' in 'sizes'|answer", ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Evaluate("'nope'|answer == 'red'", ctx)
	require.Error(t, err)
	assert.True(t, IsQuestionMissing(err))

	var missing *QuestionMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "nope", missing.Question)
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	ctx := NewContext(nil).WithTransform("boom", func(any, []any) (any, error) {
		return nil, errors.New("must not run")
	})

	result, err := Evaluate("false && 'x'|boom", ctx)
	require.NoError(t, err)
	assert.Equal(t, false, result)

	result, err = Evaluate("true || 'x'|boom", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	_, err = Evaluate("true && 'x'|boom", ctx)
	require.Error(t, err)

	var evalErr *EvaluationError
	assert.True(t, errors.As(err, &evalErr))
}

func TestEvaluate_Errors(t *testing.T) {
	t.Run("unknown transform", func(t *testing.T) {
		_, err := Evaluate("'a'|nope", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownTransform)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := Evaluate("'a' < 1", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("division by zero", func(t *testing.T) {
		_, err := Evaluate("1 / 0", nil)
		require.Error(t, err)

		var evalErr *EvaluationError
		assert.True(t, errors.As(err, &evalErr))
	})
}

func TestCheck_SyntaxErrors(t *testing.T) {
	tests := []struct {
		expression string
		position   int
	}{
		{"1 +", 3},
		{"(1", 2},
		{"'open", 0},
		{"a ? b", 5},
		{"'a'|", 4},
		{"1 2", 2},
		{"{a 1}", 3},
		{"a # b", 2},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			err := Check(tt.expression)
			require.Error(t, err)

			var syntaxErr *ExpressionSyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			assert.Equal(t, tt.position, syntaxErr.Position)
			assert.Equal(t, tt.expression, syntaxErr.Expression)
		})
	}

	assert.NoError(t, Check("'a'|answer in ['x', 'y'] && info.form == 'main'"))
	assert.NoError(t, Check(""))
}

func TestEvaluator_CachesPrograms(t *testing.T) {
	evaluator := New()

	for range 3 {
		_, err := evaluator.Evaluate("1 + 1", nil)
		require.NoError(t, err)
	}

	_, err := evaluator.Evaluate("2 + 2", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, evaluator.CacheSize())
}

func TestEvaluator_ConcurrentUse(t *testing.T) {
	evaluator := New()

	var wg sync.WaitGroup

	for i := range 32 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			ctx := NewContext(map[string]any{"n": float64(n)})

			result, err := evaluator.Evaluate("n * 2", ctx)
			assert.NoError(t, err)
			assert.Equal(t, float64(n*2), result)
		}(i)
	}

	wg.Wait()
}

func TestAnalyzeTransformSubjects(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		expected   map[string]struct{}
	}{
		{"single literal", "'X'|task", map[string]struct{}{"X": {}}},
		{"list literal", "['A', 'B']|tasks", map[string]struct{}{"A": {}, "B": {}}},
		{"both branches of a ternary", "'q'|answer == 'y' ? 'A'|task : 'B'|task", map[string]struct{}{"A": {}, "B": {}}},
		{"computed subject ignored", "info.next|task", map[string]struct{}{}},
		{"other transforms ignored", "'q'|answer", map[string]struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subjects, err := AnalyzeTransformSubjects(tt.expression, "task", "tasks")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, subjects)
		})
	}

	_, err := AnalyzeTransformSubjects("'X'|", "task")
	assert.True(t, IsSyntaxError(err))
}

func TestParse_Pipes(t *testing.T) {
	tree, err := Parse("['a', 'b']|mapby('x')|count")
	require.NoError(t, err)

	outer, ok := tree.(*Pipe)
	require.True(t, ok)
	assert.Equal(t, "count", outer.Name)
	assert.Empty(t, outer.Args)

	inner, ok := outer.Subject.(*Pipe)
	require.True(t, ok)
	assert.Equal(t, "mapby", inner.Name)
	require.Len(t, inner.Args, 1)

	var names []string

	Walk(tree, func(node Node) {
		if pipe, ok := node.(*Pipe); ok {
			names = append(names, pipe.Name)
		}
	})
	assert.Equal(t, []string{"count", "mapby"}, names)
}
