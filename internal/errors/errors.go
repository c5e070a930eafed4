package errors

import "fmt"

// Gateway error taxonomy. Authentication errors are fatal to the connection;
// validation, authorization and rate limit errors answer the triggering frame
// and leave the connection open.
var (
	ErrUnauthenticated  = fmt.Errorf("not authenticated")
	ErrBadToken         = fmt.Errorf("invalid token")
	ErrTokenExpired     = fmt.Errorf("token expired")
	ErrSessionRevoked   = fmt.Errorf("session revoked")
	ErrAccessDenied     = fmt.Errorf("access denied")
	ErrBadID            = fmt.Errorf("malformed id")
	ErrBadPayload       = fmt.Errorf("malformed payload")
	ErrUnknownOpcode    = fmt.Errorf("unknown opcode")
	ErrRateLimited      = fmt.Errorf("rate limited")
	ErrUnknownChannel   = fmt.Errorf("unknown channel")
	ErrUnknownGuild     = fmt.Errorf("unknown guild")
	ErrUnknownMessage   = fmt.Errorf("unknown message")
	ErrUnknownUser      = fmt.Errorf("unknown user")
	ErrInternal         = fmt.Errorf("internal error")
	ErrConnectionClosed = fmt.Errorf("connection closed")
)
