package onvif

import "errors"

// ErrUnknownAction is returned by Registry.Dispatch for an unregistered action.
var ErrUnknownAction = errors.New("unknown action")
