package auth

import "fmt"

// AuthError reports that no valid session could be established: the login
// was rejected, or a refresh failed and the re-login fallback failed too.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + e.Op + " failed"
	}
	return fmt.Sprintf("auth: %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
