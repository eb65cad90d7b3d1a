package realtime

import "errors"

var (
	ErrUnknownClient = errors.New("client not registered")
	ErrEmptyRoom     = errors.New("order id is required")
)
