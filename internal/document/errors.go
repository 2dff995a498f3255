package document

import (
	"errors"

	"github.com/dshills/exthost/internal/protocol"
)

// Document errors. Each carries a protocol code so it can be returned to
// a peer unchanged.
var (
	ErrAlreadyOpen = &protocol.Error{Code: protocol.CodeInvalidParams, Message: "document already open"}
	ErrNotOpen     = protocol.ErrDocumentNotFound
	ErrStale       = protocol.ErrStaleVersion
)

// ErrUnsubscribed is returned by Flush after the subscription ended.
var ErrUnsubscribed = errors.New("document: subscription closed")
