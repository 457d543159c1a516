package signature

import (
	"errors"

	"github.com/certenio/ksi-go/pkg/tlv"
)

// ErrInvalidFormat is returned for structurally malformed input: a
// truncated TLV, a wrong top-level tag, a missing required sub-element.
var ErrInvalidFormat = tlv.ErrInvalidFormat

// ErrInvalidSignature is returned when the TLV decodes cleanly but
// violates one of §3's signature-level invariants: chain algebra,
// index continuity, the cal_auth/publication mutual-exclusion rule, or
// calendar time derivation.
var ErrInvalidSignature = errors.New("signature: invalid signature")

// ErrIncompatibleHashChain is returned by Extend when the server's
// returned calendar chain does not preserve the original chain's
// right-links below the original publication time (§4.3 step 4, §8
// "Extension compatibility").
var ErrIncompatibleHashChain = errors.New("signature: incompatible hash chain on extension")
