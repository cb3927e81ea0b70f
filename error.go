package main

// userError is a wrapper around an error that adds a human-readable
// reason shown by the CLI.
type userError struct {
	err    error
	reason string
}

func (u userError) Error() string {
	return u.err.Error()
}

func (u userError) Reason() string {
	return u.reason
}

func (u userError) Unwrap() error {
	return u.err
}
