// Package refresherr is the closed sum of error kinds the controller can
// raise, replacing the exceptions-as-control-flow style of the original
// implementation (PrecheckFailed, PeerRelationMissing,
// KubernetesJujuAppNotTrusted, _InvalidForceEvent, _InvalidResumeEvent)
// with typed errors that satisfy errors.As.
package refresherr

import "fmt"

// PrecheckFailed is raised by a charm-supplied pre-refresh hook. Message
// should be a short, descriptive string (<=64 chars recommended); it is
// shown verbatim in unit status and action failures.
type PrecheckFailed struct {
	Message string
}

func (e *PrecheckFailed) Error() string {
	return fmt.Sprintf("pre-refresh check failed: %s", e.Message)
}

// NewPrecheckFailed constructs a PrecheckFailed, rejecting an empty
// message the way the original implementation's PrecheckFailed.__init__
// does.
func NewPrecheckFailed(message string) *PrecheckFailed {
	if message == "" {
		panic("PrecheckFailed message must be longer than 0 characters")
	}
	return &PrecheckFailed{Message: message}
}

// PeerRelationMissing indicates the refresh peer relation does not exist
// yet (pre-install). The framework should retry on the next event.
type PeerRelationMissing struct{}

func (e *PeerRelationMissing) Error() string {
	return "refresh peer relation is not yet available"
}

// NotTrusted indicates the SelfSubjectAccessReview for patching the
// StatefulSet was denied. The controller aborts cleanly after setting a
// leader-app status asking the operator to grant trust.
type NotTrusted struct {
	App string
}

func (e *NotTrusted) Error() string {
	return fmt.Sprintf("charm %q is not trusted: cannot patch statefulset", e.App)
}

// ManifestError indicates refresh_versions.toml, metadata.yaml or
// .juju-charm could not be parsed into the data this controller needs.
// This is a hard failure: the caller (framework) decides whether to
// retry.
type ManifestError struct {
	Detail string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest error: %s", e.Detail)
}

// InvalidAction indicates an operator action was run with parameters, or
// at a cluster state, that make it inapplicable.
type InvalidAction struct {
	Reason string
}

func (e *InvalidAction) Error() string {
	return e.Reason
}
