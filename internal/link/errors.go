package link

import "errors"

var (
	ErrMailboxBusy = errors.New("link: prior transaction of this kind still unresolved")
	ErrSendTimeout = errors.New("link: send retries exhausted while channel busy")
	ErrClosed      = errors.New("link: link closed")
)
