package bootstrap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := newError(StageFilesystem, ErrFetch, "a/x.src", errors.New("404 Not Found"))
	require.Equal(t, "filesystem: fetch error (a/x.src): 404 Not Found", err.Error())

	err = newError(StageManifest, ErrParse, "", nil)
	require.Equal(t, "manifest: parse error", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := fmt.Errorf("wrapped: %w", newError(StageModules, ErrModuleLoad, "pkgA", cause))

	require.ErrorIs(t, err, ErrModuleLoad)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrImport)

	stage, ok := StageOf(err)
	require.True(t, ok)
	require.Equal(t, StageModules, stage)

	_, ok = StageOf(cause)
	require.False(t, ok)
}

func TestStateTransitions(t *testing.T) {
	require.True(t, StateIdle.canAdvanceTo(StateManifestFetched))
	require.True(t, StateModulesInstalled.canAdvanceTo(StateRunning))
	require.True(t, StateRunning.canAdvanceTo(StateFailed))
	require.True(t, StateIdle.canAdvanceTo(StateFailed))

	require.False(t, StateIdle.canAdvanceTo(StateFilesystemStaged), "no skipping")
	require.False(t, StateRunning.canAdvanceTo(StateModulesInstalled), "no going back")
	require.False(t, StateCompleted.canAdvanceTo(StateFailed))
	require.False(t, StateFailed.canAdvanceTo(StateIdle))

	require.True(t, StateCompleted.Terminal())
	require.True(t, StateFailed.Terminal())
	require.False(t, StateRunning.Terminal())
}

func TestStrings(t *testing.T) {
	require.Equal(t, "filesystem", StageFilesystem.String())
	require.Equal(t, "unknown", Stage(0).String())
	require.Equal(t, "modules-installed", StateModulesInstalled.String())
	require.Equal(t, "unknown", State(99).String())
}

func TestValidateModuleName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"fmt", true},
		{"encoding/json", true},
		{"pkgA", true},
		{"github.com/acme/widgets", true},
		{"my-module_2", true},
		{"", false},
		{"fmt; ls", false},
		{"a|b", false},
		{"a&b", false},
		{"$HOME", false},
		{"`id`", false},
		{"a b", false},
		{"a\nb", false},
		{"/etc/passwd", false},
		{"../escape", false},
		{"a/./b", false},
		{"a//b", false},
		{"a/", false},
	}

	for _, tt := range tests {
		err := ValidateModuleName(tt.name)
		if tt.valid {
			require.NoError(t, err, "%q", tt.name)
		} else {
			require.Error(t, err, "%q", tt.name)
		}
	}
}
