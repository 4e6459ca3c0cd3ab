package diffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engine() *Engine {
	return New(Options{})
}

func TestDiffEmptyOnEqualDocuments(t *testing.T) {
	e := engine()
	a := map[string]interface{}{"text": "hello"}
	delta := e.Diff(a, a)
	assert.True(t, e.IsEmpty(delta))
}

func TestRoundTripScalarReplace(t *testing.T) {
	e := engine()
	a := map[string]interface{}{"text": "hello"}
	b := map[string]interface{}{"text": "hello world"}

	delta := e.Diff(a, b)
	require.False(t, e.IsEmpty(delta))

	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestRoundTripNestedObjects(t *testing.T) {
	e := engine()
	a := map[string]interface{}{
		"meta": map[string]interface{}{"title": "a", "count": float64(1)},
		"tags": []interface{}{"x", "y"},
	}
	b := map[string]interface{}{
		"meta": map[string]interface{}{"title": "b", "count": float64(2)},
		"tags": []interface{}{"x", "z"},
	}

	delta := e.Diff(a, b)
	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestFieldAdditionAndDeletion(t *testing.T) {
	e := engine()
	a := map[string]interface{}{"keep": "v", "drop": "gone"}
	b := map[string]interface{}{"keep": "v", "added": "new"}

	delta := e.Diff(a, b)
	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestArrayElementIdentityTracksID(t *testing.T) {
	e := engine()
	a := []interface{}{
		map[string]interface{}{"id": "1", "val": "one"},
		map[string]interface{}{"id": "2", "val": "two"},
	}
	// Reordered and one element mutated; identity should follow id, not index.
	b := []interface{}{
		map[string]interface{}{"id": "2", "val": "two-edited"},
		map[string]interface{}{"id": "1", "val": "one"},
	}

	delta := e.Diff(a, b)
	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestArrayInsertAndRemove(t *testing.T) {
	e := engine()
	a := []interface{}{
		map[string]interface{}{"id": "1"},
		map[string]interface{}{"id": "2"},
	}
	b := []interface{}{
		map[string]interface{}{"id": "2"},
		map[string]interface{}{"id": "3"},
	}

	delta := e.Diff(a, b)
	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestObjectHashFallsBackToUnderscoreID(t *testing.T) {
	e := engine()
	a := []interface{}{map[string]interface{}{"_id": "x", "n": float64(1)}}
	b := []interface{}{map[string]interface{}{"_id": "x", "n": float64(2)}}

	delta := e.Diff(a, b)
	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestDeepCopyIsIndependent(t *testing.T) {
	e := engine()
	a := map[string]interface{}{"nested": map[string]interface{}{"v": float64(1)}}
	cp := e.DeepCopy(a).(map[string]interface{})
	cp["nested"].(map[string]interface{})["v"] = float64(99)

	assert.Equal(t, float64(1), a["nested"].(map[string]interface{})["v"])
}

func TestPatchDoesNotMutateDelta(t *testing.T) {
	e := engine()
	a := map[string]interface{}{"text": "hello"}
	b := map[string]interface{}{"text": "hello world"}

	delta := e.Diff(a, b)
	_ = e.Patch(e.DeepCopy(a), delta)
	_ = e.Patch(e.DeepCopy(a), delta)

	got := e.Patch(e.DeepCopy(a), delta)
	assert.Equal(t, b, got)
}

func TestCustomHashFunc(t *testing.T) {
	calls := 0
	e := New(Options{HashFunc: func(obj interface{}) string {
		calls++
		return DefaultObjectHash(obj)
	}})

	a := []interface{}{map[string]interface{}{"id": "1", "v": float64(1)}}
	b := []interface{}{map[string]interface{}{"id": "1", "v": float64(2)}}
	e.Diff(a, b)

	assert.Greater(t, calls, 0)
}
