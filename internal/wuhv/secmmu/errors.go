package secmmu

import "errors"

var (
	errDomainFault     = errors.New("domain fault")
	errPermissionFault = errors.New("permission fault")
)
