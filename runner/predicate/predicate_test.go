package predicate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yawlgo/engine/runner/predicate"
)

func TestGetSetDottedPath(t *testing.T) {
	d := predicate.Document{}
	d.Set("order.total", 42.0)
	v, ok := d.Get("order.total")
	require.True(t, ok)
	assert.Equal(t, 42.0, v)
}

func TestEvalLiterals(t *testing.T) {
	d := predicate.Document{}
	ok, err := predicate.Eval("true()", d)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = predicate.Eval("false()", d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalComparison(t *testing.T) {
	d := predicate.Document{}
	d.Set("order.total", 120.0)

	ok, err := predicate.Eval("order.total > 100", d)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = predicate.Eval("order.total <= 100", d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalMissingFieldErrors(t *testing.T) {
	d := predicate.Document{}
	_, err := predicate.Eval("missing.field", d)
	assert.Error(t, err)
}

func TestEvalEquality(t *testing.T) {
	d := predicate.Document{}
	d.Set("status", "approved")

	ok, err := predicate.Eval(`status == "approved"`, d)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = predicate.Eval(`status != "rejected"`, d)
	require.NoError(t, err)
	assert.True(t, ok)
}
