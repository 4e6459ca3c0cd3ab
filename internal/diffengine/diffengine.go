// Package diffengine implements pure diff/patch/clone over structured JSON
// values (map[string]interface{}, []interface{}, and JSON scalars) with
// stable array-element identity.
//
// There is no Go ecosystem library that exposes a pluggable object-hash
// hook for array-element identity the way this package's contract
// requires, so the algorithm is hand-implemented here, the same way
// controllers/room.go hand-rolls its own component patch-merge logic
// rather than reaching for a library. encoding/json is used only for
// canonical-serialization hashing, never for the diff/patch algorithm
// itself.
package diffengine

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Document is an arbitrary JSON-typed value: map[string]interface{},
// []interface{}, string, float64, bool, or nil.
type Document = interface{}

// HashFunc computes a stable identity for an array element. The default
// returns obj["id"], else obj["_id"], else a canonical serialization.
type HashFunc func(obj interface{}) string

// Options configures an Engine.
type Options struct {
	HashFunc HashFunc
}

// Engine is a configured diff/patch/clone pipeline.
type Engine struct {
	hash HashFunc
}

// New builds an Engine. A zero-value Options selects DefaultObjectHash.
func New(opts Options) *Engine {
	h := opts.HashFunc
	if h == nil {
		h = DefaultObjectHash
	}
	return &Engine{hash: h}
}

// DefaultObjectHash returns obj.id if present, else obj._id, else a
// canonical JSON serialization of obj.
func DefaultObjectHash(obj interface{}) string {
	if m, ok := obj.(map[string]interface{}); ok {
		if id, ok := m["id"]; ok {
			return fmt.Sprintf("id:%v", id)
		}
		if id, ok := m["_id"]; ok {
			return fmt.Sprintf("_id:%v", id)
		}
	}
	// encoding/json sorts map keys, so this serialization is canonical
	// regardless of the original key order.
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return string(b)
}

// Delta is the result of diffing two Documents. The zero value is the
// empty delta (a and b were structurally equal).
type Delta struct {
	// Op is "" for a container delta (Object/Array below describe the
	// change), "set" to replace the whole node with New, or "delete" to
	// remove the node from its parent container (only meaningful as a
	// value inside Object).
	Op  string      `json:"op,omitempty"`
	New interface{} `json:"new,omitempty"`

	// Object holds per-key sub-deltas when a and b are both objects.
	Object map[string]*Delta `json:"object,omitempty"`

	// Array holds identity-tracked element changes when a and b are both
	// arrays.
	Array *arrayDelta `json:"array,omitempty"`
}

type arrayDelta struct {
	Items []arrayItem `json:"items"`
}

type arrayItem struct {
	// Op is "keep" (element identified by Hash existed in the source
	// array, optionally with a nested Delta) or "insert" (no matching
	// source element; Value carries the new element verbatim).
	Op    string      `json:"op"`
	Hash  string      `json:"hash,omitempty"`
	Delta *Delta      `json:"delta,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// IsEmpty reports whether delta represents no change.
func IsEmpty(delta *Delta) bool {
	return delta == nil || (delta.Op == "" && len(delta.Object) == 0 && delta.Array == nil)
}

// Diff returns the delta that, applied via Patch to a, yields a value
// equal to b. The empty delta is returned iff a and b are structurally
// equal.
func (e *Engine) Diff(a, b Document) *Delta {
	if reflect.DeepEqual(a, b) {
		return &Delta{}
	}

	am, aIsMap := a.(map[string]interface{})
	bm, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		return e.diffObjects(am, bm)
	}

	aa, aIsArr := a.([]interface{})
	ba, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		return e.diffArrays(aa, ba)
	}

	return &Delta{Op: "set", New: DeepCopy(b)}
}

func (e *Engine) diffObjects(a, b map[string]interface{}) *Delta {
	obj := make(map[string]*Delta)

	for k, av := range a {
		bv, stillPresent := b[k]
		if !stillPresent {
			obj[k] = &Delta{Op: "delete"}
			continue
		}
		if sub := e.Diff(av, bv); !IsEmpty(sub) {
			obj[k] = sub
		}
	}
	for k, bv := range b {
		if _, existedInA := a[k]; existedInA {
			continue
		}
		obj[k] = &Delta{Op: "set", New: DeepCopy(bv)}
	}

	if len(obj) == 0 {
		return &Delta{}
	}
	return &Delta{Object: obj}
}

func (e *Engine) diffArrays(a, b []interface{}) *Delta {
	aByHash := make(map[string]interface{}, len(a))
	for _, elem := range a {
		aByHash[e.hash(elem)] = elem
	}

	items := make([]arrayItem, 0, len(b))
	for _, elem := range b {
		h := e.hash(elem)
		if old, existed := aByHash[h]; existed {
			sub := e.Diff(old, elem)
			if IsEmpty(sub) {
				items = append(items, arrayItem{Op: "keep", Hash: h})
			} else {
				items = append(items, arrayItem{Op: "keep", Hash: h, Delta: sub})
			}
			continue
		}
		items = append(items, arrayItem{Op: "insert", Value: DeepCopy(elem)})
	}

	return &Delta{Array: &arrayDelta{Items: items}}
}

// Patch applies delta to doc and returns the resulting value. It never
// mutates delta, and never mutates doc in place (callers must use the
// returned value).
func (e *Engine) Patch(doc Document, delta *Delta) Document {
	if IsEmpty(delta) {
		return doc
	}

	switch {
	case delta.Op == "set":
		return DeepCopy(delta.New)
	case delta.Op == "delete":
		// Only meaningful nested inside an Object delta; at the top
		// level there is nothing to delete from, so treat as no-op.
		return doc
	case delta.Object != nil:
		return e.patchObject(doc, delta.Object)
	case delta.Array != nil:
		return e.patchArray(doc, delta.Array)
	default:
		return doc
	}
}

func (e *Engine) patchObject(doc Document, obj map[string]*Delta) Document {
	src, _ := doc.(map[string]interface{})
	result := make(map[string]interface{}, len(src)+len(obj))
	for k, v := range src {
		result[k] = v
	}

	for k, sub := range obj {
		if sub.Op == "delete" {
			delete(result, k)
			continue
		}
		result[k] = e.Patch(result[k], sub)
	}
	return result
}

func (e *Engine) patchArray(doc Document, ad *arrayDelta) Document {
	src, _ := doc.([]interface{})
	srcByHash := make(map[string]interface{}, len(src))
	for _, elem := range src {
		srcByHash[e.hash(elem)] = elem
	}

	result := make([]interface{}, 0, len(ad.Items))
	for _, item := range ad.Items {
		if item.Op == "insert" {
			result = append(result, DeepCopy(item.Value))
			continue
		}
		old := srcByHash[item.Hash]
		if item.Delta != nil {
			result = append(result, e.Patch(old, item.Delta))
		} else {
			result = append(result, DeepCopy(old))
		}
	}
	return result
}

// IsEmpty reports whether delta represents no change. Method form of the
// package-level IsEmpty, kept since diff/patch/deepCopy/isEmpty are all
// specified as operations of a configured engine.
func (e *Engine) IsEmpty(delta *Delta) bool {
	return IsEmpty(delta)
}

// DeepCopy returns a value-independent copy of v. Method form of the
// package-level DeepCopy.
func (e *Engine) DeepCopy(v Document) Document {
	return DeepCopy(v)
}

// DeepCopy returns a value-independent copy of v.
func DeepCopy(v Document) Document {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		// Strings, float64, bool, and nil are immutable value types.
		return t
	}
}
