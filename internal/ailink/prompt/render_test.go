package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	p, err := reg.Get(SlugCircuitSVG)
	require.NoError(t, err)

	system, user, err := Render(p, map[string]string{"description": "line follower", "parts": "Arduino Nano, TCRT5000"})
	require.NoError(t, err)
	require.Contains(t, system, "#FF0000")
	require.Contains(t, user, "line follower")
	require.Contains(t, user, "Arduino Nano, TCRT5000")
	require.NotContains(t, user, "{{")
}

func TestRenderConditionalFallback(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	p, err := reg.Get(SlugCircuitSVG)
	require.NoError(t, err)

	_, user, err := Render(p, map[string]string{"description": "rover"})
	require.NoError(t, err)
	require.Contains(t, user, "HC-SR04 ultrasonic sensor, SG90 servo")
}

func TestRenderRequiresVariables(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	p, err := reg.Get(SlugWebSearch)
	require.NoError(t, err)

	_, _, err = Render(p, map[string]string{"query": "  "})
	require.ErrorContains(t, err, "query")
}

func TestRenderDefaultUserTemplate(t *testing.T) {
	p := &Prompt{Config: Config{Slug: "x", SystemTemplate: "sys"}}
	_, user, err := Render(p, map[string]string{"description": "a robot dog"})
	require.NoError(t, err)
	require.Equal(t, "a robot dog", user)
}

func TestApplyConditionalsNested(t *testing.T) {
	out := applyConditionals("{{#if a}}A{{#if b}}B{{/if}}{{else}}none{{/if}}", map[string]string{"a": "1"})
	require.Equal(t, "A", out)
	out = applyConditionals("{{#if a}}A{{else}}none{{/if}}", nil)
	require.Equal(t, "none", out)
}
