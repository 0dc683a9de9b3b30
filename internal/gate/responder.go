package gate

import (
	"net/http"

	"github.com/parokia/parokia/internal/platform/httpx"
	"github.com/parokia/parokia/internal/shared"
)

// Responder renders halted decisions. API clients get a JSON error body,
// browsers a redirect with a flash message.
type Responder struct {
	LoginPath string
	HomePath  string
}

// DefaultResponder redirects to /auth/login and /.
func DefaultResponder() Responder {
	return Responder{LoginPath: "/auth/login", HomePath: "/"}
}

// Respond writes the response for a halted decision.
func (rs Responder) Respond(w http.ResponseWriter, r *http.Request, sess *shared.Session, d Decision, capability Capability) {
	if d.Err != nil && d.State != StateSessionInvalid && d.State != StateInactive {
		if httpx.WantsJSON(r) {
			httpx.Error(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// A forced logout answers as an unauthenticated request.
	state := d.State
	if state == StateSessionInvalid {
		state = StateUnauthenticated
	}
	code, message := describe(state, capability)

	if httpx.WantsJSON(r) {
		body := httpx.ErrorBody{Error: code, Message: message}
		if state == StateUnauthorized {
			body.Capability = capability.Name
		}
		httpx.JSON(w, state.Status(), body)
		return
	}

	target := rs.HomePath
	if state.Status() == http.StatusUnauthorized {
		target = rs.LoginPath
	}
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: message})
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func describe(state State, capability Capability) (string, string) {
	switch state {
	case StateUnauthenticated:
		return "unauthenticated", "Please sign in to continue."
	case StateInactive:
		return "account_inactive", "Your account has been deactivated. Contact the parish office."
	case StateNoRole:
		return "no_role_assigned", "Your account has no role yet. Ask an administrator to assign one."
	default:
		msg := "You do not have access to this page."
		if !capability.IsZero() {
			msg = "You do not have the " + capability.Name + " " + kindLabel(capability.Kind) + " required for this page."
		}
		return "insufficient_capability", msg
	}
}

func kindLabel(k Kind) string {
	if k == KindRole {
		return "role"
	}
	return "permission"
}
