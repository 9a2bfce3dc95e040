package xfer

import "github.com/pkg/errors"

var (
	// ErrTransactionConsumed is returned when a transaction is executed a
	// second time
	ErrTransactionConsumed = errors.New("transaction already executed")
	// ErrUnsupported marks requests for features this package does not
	// provide, such as time interpolation
	ErrUnsupported = errors.New("unsupported")
)
