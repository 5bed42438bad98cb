package pubsub

import "errors"

// Sentinel kinds for notification transport errors.
var (
	ErrEncode          = errors.New("encode storage event")
	ErrDecode          = errors.New("decode storage event")
	ErrPayloadTooLarge = errors.New("notification payload too large")
)
