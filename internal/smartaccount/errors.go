package smartaccount

import (
	"errors"

	"smartvault-go/internal/gateway"
	"smartvault-go/internal/signer"
	"smartvault-go/internal/squads"
)

// ErrCreationUnconfirmed means the multisig was submitted but did not
// become readable within the confirmation delay. Calling GetOrCreate
// again is safe.
var ErrCreationUnconfirmed = errors.New("multisig creation unconfirmed")

// Error kind names, stable for logs and metric labels.
const (
	KindNotFound            = "not_found"
	KindDecode              = "decode"
	KindTransport           = "transport"
	KindCreationUnconfirmed = "creation_unconfirmed"
	KindCompile             = "compile"
	KindSigning             = "signing"
	KindUnknown             = "unknown"
)

// Kind classifies err. Nil maps to the empty string.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCreationUnconfirmed):
		return KindCreationUnconfirmed
	case errors.Is(err, squads.ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, squads.ErrAccountDecode):
		return KindDecode
	case errors.Is(err, gateway.ErrTransport):
		return KindTransport
	case errors.Is(err, squads.ErrCompile):
		return KindCompile
	case errors.Is(err, signer.ErrSigning):
		return KindSigning
	default:
		return KindUnknown
	}
}
