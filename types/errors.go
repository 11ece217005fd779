package types

import "errors"

var (
	ErrUnknownLevel         = errors.New("unknown level")
	ErrUnknownSecurityClass = errors.New("unknown security class")
	ErrMalformedSecurityID  = errors.New("malformed security id")
)
