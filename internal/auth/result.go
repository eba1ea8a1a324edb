package auth

import (
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// Reason is why a request was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoSuchUser
	ReasonDisabledUser
	ReasonBadPassword
	ReasonStaleTimestamp
	ReasonReplayedNonce
	ReasonMalformedToken
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoSuchUser:
		return "no_such_user"
	case ReasonDisabledUser:
		return "disabled_user"
	case ReasonBadPassword:
		return "bad_password"
	case ReasonStaleTimestamp:
		return "stale_timestamp"
	case ReasonReplayedNonce:
		return "replayed_nonce"
	case ReasonMalformedToken:
		return "malformed_token"
	default:
		return "unknown"
	}
}

// FailureText is the only reason text a client sees for a rejection.
const FailureText = "Authentication Failed"

// Result is the outcome of authenticating one request.
type Result struct {
	Accepted bool
	Reason   Reason
	// Username is the token's username when one was extracted.
	Username string
	// Anonymous is set when the request was accepted without a token.
	Anonymous bool
}

// FaultFor maps a rejection reason to the fault sent to the client. Every
// reason yields the same s:Sender "Authentication Failed" fault.
func FaultFor(Reason) *soap.Fault {
	return soap.NewNotAuthorizedFault(FailureText)
}
