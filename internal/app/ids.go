package app

import "github.com/google/uuid"

// newPlayID tags a play for log correlation and transport replies.
func newPlayID() string { return uuid.NewString() }
