package subscriber

import "errors"

var (
	ErrDisconnected = errors.New("realtime connection is down")
	ErrNotMounted   = errors.New("order is not mounted")
)
