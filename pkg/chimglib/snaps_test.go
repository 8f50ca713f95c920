// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package chimglib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapInfoBase(t *testing.T) {
	si := &SnapInfo{Name: "chezmoi", Info: map[string]any{"base": "core24"}}
	assert.Equal(t, "core24", si.Base())
}

func TestSnapInfoBaseDefault(t *testing.T) {
	si := &SnapInfo{Name: "hello", Info: map[string]any{}}
	assert.Equal(t, "core", si.Base())

	si = &SnapInfo{Name: "hello", Info: nil}
	assert.Equal(t, "core", si.Base())
}

func TestRequiredBaseSnaps(t *testing.T) {
	snapInfos := map[string]*SnapInfo{
		"chezmoi": {Name: "chezmoi", Info: map[string]any{"base": "core24"}},
		"hello":   {Name: "hello", Info: map[string]any{}},
	}

	bases := requiredBaseSnaps(snapInfos)
	assert.Equal(t, []string{"core", "core24"}, bases)
}

func TestRequiredBaseSnapsDeduplicates(t *testing.T) {
	snapInfos := map[string]*SnapInfo{
		"chezmoi": {Name: "chezmoi", Info: map[string]any{"base": "core24"}},
		"go":      {Name: "go", Info: map[string]any{"base": "core24"}},
	}

	bases := requiredBaseSnaps(snapInfos)
	assert.Equal(t, []string{"core24"}, bases)
}

func TestRequiredBaseSnapsExplicitBaseWins(t *testing.T) {
	snapInfos := map[string]*SnapInfo{
		"chezmoi": {Name: "chezmoi", Info: map[string]any{"base": "core24"}},
		"core24":  {Name: "core24", Info: map[string]any{"type": "base"}},
	}

	bases := requiredBaseSnaps(snapInfos)
	assert.Empty(t, bases)
}

func TestRequiredBaseSnapsSelfContained(t *testing.T) {
	// snapd, core and core<NN> have no base of their own, even when their
	// metadata is silent.
	snapInfos := map[string]*SnapInfo{
		"snapd":  {Name: "snapd", Info: map[string]any{}},
		"core":   {Name: "core", Info: map[string]any{}},
		"core18": {Name: "core18", Info: map[string]any{}},
		"core24": {Name: "core24", Info: map[string]any{}},
	}

	bases := requiredBaseSnaps(snapInfos)
	assert.Empty(t, bases)
}

func TestRequiredBaseSnapsCorePatternIsAnchored(t *testing.T) {
	// Snaps that merely resemble a core snap still need their base.
	snapInfos := map[string]*SnapInfo{
		"core245":  {Name: "core245", Info: map[string]any{"base": "core24"}},
		"corefoo":  {Name: "corefoo", Info: map[string]any{"base": "core22"}},
		"mycore18": {Name: "mycore18", Info: map[string]any{}},
	}

	bases := requiredBaseSnaps(snapInfos)
	assert.Equal(t, []string{"core", "core22", "core24"}, bases)
}
