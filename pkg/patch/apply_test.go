// Copyright (C) 2025 BundleNudge (support@bundlenudge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package patch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlenudge/bundlenudge/pkg/bundle"
)

// threeModuleBundle mirrors a small app bundle: an entry module, a config
// module, and a constants module.
func threeModuleBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	return mustParse(t, bundleText("var p=1;\n",
		`__d(console.log('main'),0,[]);`,
		`__d(exports.foo='bar',1,[]);`,
		`__d(exports.baz=42,2,[]);`,
	))
}

func TestApply_AddReplaceDeleteScenario(t *testing.T) {
	b := threeModuleBundle(t)

	p := &Patch{Operations: []Operation{
		{Op: OpDelete, ModuleID: 2},
		{Op: OpAdd, ModuleID: 3, Code: "exports.new='module'", Dependencies: []int{}},
		{Op: OpReplace, ModuleID: 1, Code: "exports.foo='updated'", Dependencies: []int{3}},
	}}
	require.NoError(t, Apply(b, p))

	assert.Nil(t, b.Module(2), "deleted module must be absent")

	added := b.Module(3)
	require.NotNil(t, added)
	assert.Equal(t, "exports.new='module'", added.Code)
	assert.Equal(t, []int{}, added.Dependencies)

	replaced := b.Module(1)
	require.NotNil(t, replaced)
	assert.Equal(t, "exports.foo='updated'", replaced.Code)
	assert.Equal(t, []int{3}, replaced.Dependencies,
		"replace may reference a module added earlier in the same patch")
}

func TestApplyOperation_Failures(t *testing.T) {
	t.Run("add existing module", func(t *testing.T) {
		b := threeModuleBundle(t)
		err := ApplyOperation(b, Operation{Op: OpAdd, ModuleID: 1, Code: "x"})
		var exists *ModuleExistsError
		require.ErrorAs(t, err, &exists)
		assert.Equal(t, 1, exists.ModuleID)
	})

	t.Run("replace missing module", func(t *testing.T) {
		b := threeModuleBundle(t)
		err := ApplyOperation(b, Operation{Op: OpReplace, ModuleID: 9, Code: "x"})
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, 9, notFound.ModuleID)
	})

	t.Run("delete missing module", func(t *testing.T) {
		b := threeModuleBundle(t)
		err := ApplyOperation(b, Operation{Op: OpDelete, ModuleID: 9})
		var notFound *ModuleNotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("unknown operation", func(t *testing.T) {
		b := threeModuleBundle(t)
		assert.Error(t, ApplyOperation(b, Operation{Op: OpType("rename"), ModuleID: 0}))
	})
}

func TestApply_FailFast(t *testing.T) {
	b := threeModuleBundle(t)

	p := &Patch{Operations: []Operation{
		{Op: OpDelete, ModuleID: 2},
		{Op: OpReplace, ModuleID: 9, Code: "x"}, // fails: no module 9
		{Op: OpAdd, ModuleID: 4, Code: "y"},     // must never run
	}}
	err := Apply(b, p)
	var notFound *ModuleNotFoundError
	require.ErrorAs(t, err, &notFound)

	// The first operation ran, the failing one surfaced, the rest did not.
	assert.Nil(t, b.Module(2))
	assert.Nil(t, b.Module(4))
}

func TestApply_PreludePostludeOverwrites(t *testing.T) {
	b := threeModuleBundle(t)
	prelude := "var p=2;\n"
	postlude := "\nrequire(0);//v2"

	require.NoError(t, Apply(b, &Patch{Prelude: &prelude, Postlude: &postlude}))
	assert.Equal(t, prelude, b.Prelude)
	assert.Equal(t, postlude, b.Postlude)
}

func TestApplyVerified_Soundness(t *testing.T) {
	oldText := bundleText("var p=1;\n",
		`__d(function(g,r,m,e){r(1)},0,[1]);`,
		`__d(function(g,r,m,e){e.a=1},1,[]);`,
	)
	newText := bundleText("var p=1;\n",
		`__d(function(g,r,m,e){r(1)},0,[1]);`,
		`__d(function(g,r,m,e){e.a='updated'},1,[]);`,
	)
	p := Diff(mustParse(t, oldText), mustParse(t, newText))

	t.Run("correct target hash returns exactly the target text", func(t *testing.T) {
		result, err := ApplyVerified(oldText, p, bundle.Hash(newText))
		require.NoError(t, err)
		assert.Equal(t, newText, result)
	})

	t.Run("any other hash fails with no bundle returned", func(t *testing.T) {
		wrongHash := bundle.Hash(newText + " ")
		result, err := ApplyVerified(oldText, p, wrongHash)
		require.ErrorIs(t, err, ErrHashMismatch)
		assert.Empty(t, result)
	})

	t.Run("invalid hash format rejected before any work", func(t *testing.T) {
		result, err := ApplyVerified("not even a bundle", p, "md5:abc")
		require.ErrorIs(t, err, ErrInvalidHashFormat)
		assert.Empty(t, result)
	})

	t.Run("malformed source surfaces parse error", func(t *testing.T) {
		_, err := ApplyVerified("no modules here", p, bundle.Hash(newText))
		var malformed *bundle.MalformedError
		require.True(t, errors.As(err, &malformed))
	})

	t.Run("base bundle mismatch surfaces operation error", func(t *testing.T) {
		mismatched := bundleText("var p=1;\n",
			`__d(function(g,r,m,e){e.z=0},7,[]);`,
		)
		_, err := ApplyVerified(mismatched, p, bundle.Hash(newText))
		var notFound *ModuleNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, 1, notFound.ModuleID)
	})
}
