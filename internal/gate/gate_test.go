package gate

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubGate struct {
	name  string
	d     Decision
	calls *[]string
}

func (s stubGate) Name() string { return s.name }

func (s stubGate) Evaluate(*Request) Decision {
	*s.calls = append(*s.calls, s.name)
	return s.d
}

func TestPipelineStopsAtFirstHalt(t *testing.T) {
	var calls []string
	p := NewPipeline(
		stubGate{name: "a", d: Pass(""), calls: &calls},
		nil,
		stubGate{name: "b", d: Decision{State: StateNoRole, Reason: "no_roles"}, calls: &calls},
		stubGate{name: "c", d: Pass(""), calls: &calls},
	)

	d := p.Run(&Request{})
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.Equal(t, "b", d.Gate)
	assert.Equal(t, StateNoRole, d.State)
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())
}

func TestPipelineCarriesFallbackOnPass(t *testing.T) {
	var calls []string
	p := NewPipeline(
		stubGate{name: "a", d: Decision{State: StateAuthorized, FallbackUsed: true}, calls: &calls},
		stubGate{name: "b", d: Pass("b"), calls: &calls},
	)
	d := p.Run(&Request{})
	assert.False(t, d.Halted())
	assert.True(t, d.FallbackUsed)
	assert.Equal(t, "b", d.Gate)
}

func TestStateStatus(t *testing.T) {
	cases := map[State]int{
		StateAuthorized:      http.StatusOK,
		StateUnauthenticated: http.StatusUnauthorized,
		StateSessionInvalid:  http.StatusUnauthorized,
		StateInactive:        http.StatusForbidden,
		StateNoRole:          http.StatusForbidden,
		StateUnauthorized:    http.StatusForbidden,
	}
	for state, status := range cases {
		assert.Equal(t, status, state.Status(), state.String())
	}
}

func TestCapabilityNormalizes(t *testing.T) {
	assert.Equal(t, "permission:members.manage", Permission(" Members.Manage ").String())
	assert.Equal(t, "role:treasurer", Role("TREASURER").String())
	assert.True(t, Capability{}.IsZero())
	assert.Empty(t, Capability{}.String())
}
