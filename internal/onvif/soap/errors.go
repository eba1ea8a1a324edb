package soap

import "errors"

var (
	// ErrMissingBody indicates the envelope has no Body element
	ErrMissingBody = errors.New("soap: missing Body element")

	// ErrUnclosedElement indicates an element or markup section that is never terminated
	ErrUnclosedElement = errors.New("soap: unclosed element")

	// ErrMissingUsername indicates a security header without a Username element
	ErrMissingUsername = errors.New("soap: missing Username in security header")

	// ErrMissingPassword indicates a security header without a Password element
	ErrMissingPassword = errors.New("soap: missing Password in security header")
)
