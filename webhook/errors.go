package webhook

import "errors"

// Auth failure reasons. All of them surface to the sender as the same
// generic 400; the reason only reaches the logs.
const (
	ReasonMalformedToken      = "malformed_token"
	ReasonUnknownInstallation = "unknown_installation"
	ReasonBadSecret           = "bad_secret"
)

// AuthError rejects a request before any payload processing happens.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "webhook auth failed: " + e.Reason
}

// ParseError marks a payload whose fields cannot be extracted. After
// authentication it is logged and the event dropped; the sender still gets
// an acknowledgement.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "webhook payload invalid: " + e.Reason
}

// RoutingError marks an event type outside the supported registry.
type RoutingError struct {
	Event string
}

func (e *RoutingError) Error() string {
	return "unsupported webhook event: " + e.Event
}

// errAuthorRequired aborts a merge event whose author cannot be
// determined. Unlike push commits, a pull request without an attributable
// author is invalid data.
var errAuthorRequired = errors.New("merge request author could not be determined")
