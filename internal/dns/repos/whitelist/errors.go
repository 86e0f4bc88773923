package whitelist

import "errors"

// ErrStoreClosed is returned by stores used after Close.
var ErrStoreClosed = errors.New("whitelist store closed")
