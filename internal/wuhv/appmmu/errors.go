package appmmu

import "errors"

var (
	errNoAccess  = errors.New("no access")
	errReadOnly  = errors.New("read-only")
)
