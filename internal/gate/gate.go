// Package gate implements the per-route authorization pipeline: an ordered
// list of independent checks that a request must pass before it reaches a
// handler. Each check implements Gate; Pipeline runs them in order and stops
// at the first halt.
package gate

import (
	"context"
	"net/http"

	"github.com/parokia/parokia/internal/rbac"
	"github.com/parokia/parokia/internal/shared"
)

// State is the terminal state of a request within the pipeline.
type State int

const (
	StateAuthorized State = iota
	StateUnauthenticated
	StateSessionInvalid
	StateInactive
	StateNoRole
	StateUnauthorized
)

// String returns the log label of the state.
func (s State) String() string {
	switch s {
	case StateAuthorized:
		return "authorized"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateSessionInvalid:
		return "session_invalid"
	case StateInactive:
		return "account_inactive"
	case StateNoRole:
		return "no_role_assigned"
	case StateUnauthorized:
		return "insufficient_capability"
	default:
		return "unknown"
	}
}

// Status maps the state to its HTTP status code.
func (s State) Status() int {
	switch s {
	case StateAuthorized:
		return http.StatusOK
	case StateUnauthenticated, StateSessionInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}

// Kind distinguishes role requirements from permission requirements.
type Kind int

const (
	KindRole Kind = iota + 1
	KindPermission
)

// Capability is the route-specific requirement checked by the last gate.
type Capability struct {
	Kind Kind
	Name string
}

// Role requires membership of the named role.
func Role(name string) Capability {
	return Capability{Kind: KindRole, Name: rbac.NormalizeName(name)}
}

// Permission requires the named permission.
func Permission(name string) Capability {
	return Capability{Kind: KindPermission, Name: rbac.NormalizeName(name)}
}

// IsZero reports whether no capability is required.
func (c Capability) IsZero() bool {
	return c.Kind == 0 || c.Name == ""
}

// String renders the capability as "kind:name".
func (c Capability) String() string {
	switch {
	case c.IsZero():
		return ""
	case c.Kind == KindRole:
		return "role:" + c.Name
	default:
		return "permission:" + c.Name
	}
}

// Decision is the outcome of one gate or of the whole pipeline.
type Decision struct {
	State        State
	Gate         string
	Reason       string
	FallbackUsed bool
	// Err is set when the gate hit an unexpected failure; the request is
	// answered with a generic server error.
	Err error
}

// Halted reports whether the request must stop here.
func (d Decision) Halted() bool {
	return d.Err != nil || d.State != StateAuthorized
}

// Pass is the decision of a gate that lets the request continue.
func Pass(gate string) Decision {
	return Decision{State: StateAuthorized, Gate: gate}
}

// Halt builds a terminal decision.
func Halt(gate string, state State, reason string) Decision {
	return Decision{State: state, Gate: gate, Reason: reason}
}

// Request carries the per-request state shared by gates. Gates may fill in
// or clear Principal.
type Request struct {
	HTTP       *http.Request
	Route      string
	Session    *shared.Session
	Principal  *rbac.Principal
	Capability Capability
}

// Context returns the request context.
func (r *Request) Context() context.Context {
	if r.HTTP == nil {
		return context.Background()
	}
	return r.HTTP.Context()
}

// Gate is one check of the pipeline.
type Gate interface {
	Name() string
	Evaluate(req *Request) Decision
}

// Pipeline runs gates in order.
type Pipeline struct {
	gates []Gate
}

// NewPipeline builds a pipeline from gates in evaluation order.
func NewPipeline(gates ...Gate) Pipeline {
	out := make([]Gate, 0, len(gates))
	for _, g := range gates {
		if g != nil {
			out = append(out, g)
		}
	}
	return Pipeline{gates: out}
}

// Names returns the gate names in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p.gates))
	for i, g := range p.gates {
		names[i] = g.Name()
	}
	return names
}

// Run evaluates gates until one halts. When every gate passes, the decision of
// the last gate is returned and FallbackUsed reflects any gate that relied on
// the fallback policy.
func (p Pipeline) Run(req *Request) Decision {
	last := Pass("")
	fallback := false
	for _, g := range p.gates {
		d := g.Evaluate(req)
		if d.Gate == "" {
			d.Gate = g.Name()
		}
		fallback = fallback || d.FallbackUsed
		if d.Halted() {
			return d
		}
		last = d
	}
	last.FallbackUsed = fallback
	return last
}
