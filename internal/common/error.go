package common

import "errors"

// ErrorNotFound is returned by lookups that find nothing.
var ErrorNotFound = errors.New("not found")
