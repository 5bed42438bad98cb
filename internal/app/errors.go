package service

import "errors"

// ErrTransport marks a transport that could not be subscribed to.
var ErrTransport = errors.New("transport unavailable")
