package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/releasegrid/internal/config"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	stage := &RegisteredStage{NewInput: func() any { return nil }}
	r.RegisterStage("plan", stage)

	got, ok := r.Lookup("plan")
	require.True(t, ok)
	assert.Same(t, stage, got)

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := New()
	r.RegisterStage("plan", &RegisteredStage{})
	assert.Panics(t, func() {
		r.RegisterStage("plan", &RegisteredStage{})
	})
}

func TestTypesAreSorted(t *testing.T) {
	r := New()
	r.RegisterStage("gate", &RegisteredStage{})
	r.RegisterStage("build", &RegisteredStage{})
	r.RegisterStage("plan", &RegisteredStage{})

	assert.Equal(t, []string{"build", "gate", "plan"}, r.Types())
}

func TestValidate(t *testing.T) {
	r := New()
	r.RegisterStage("plan", &RegisteredStage{})

	model := &config.Model{Stages: []*config.Stage{
		{Type: "plan", Name: "manifest"},
	}}
	assert.NoError(t, r.Validate(model))

	model.Stages = append(model.Stages, &config.Stage{Type: "teleport", Name: "x"})
	err := r.Validate(model)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}
