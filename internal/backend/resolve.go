package backend

import "fmt"

// New constructs the Client for a given backend Kind. Local never fails;
// Linear and Jira return ErrMissingCredentials if their environment
// variables are absent.
func New(kind Kind, gitRoot string) (Client, error) {
	switch kind {
	case KindLocal:
		return NewLocal(gitRoot), nil
	case KindLinear:
		return NewLinear()
	case KindJira:
		return NewJira()
	default:
		return nil, fmt.Errorf("backend: unknown kind %q", kind)
	}
}
