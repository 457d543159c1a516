package policy

import (
	"crypto/x509"

	"github.com/certenio/ksi-go/pkg/chain"
	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/pubfile"
	"github.com/certenio/ksi-go/pkg/signature"
	"github.com/certenio/ksi-go/pkg/trust"
)

// Extender is the narrow collaborator calendar-based policy needs: ask
// for a calendar chain rooted at aggregationTime, optionally targeting
// a specific publication time. pkg/client implements this; pkg/policy
// depends only on this interface so it never imports pkg/client
// (pkg/client will import pkg/policy to run internal verification
// after signing, which would otherwise cycle).
type Extender interface {
	Extend(aggregationTime uint64, publicationTime *uint64) (chain.CalendarChain, error)
}

// VerificationContext carries everything a policy rule might need:
// the signature under test, an optional document hash to match, the
// local-aggregation level the caller requested, a publications file,
// a trust store, certificate constraints, and an optional extender for
// calendar-based and extending-publication-based verification.
type VerificationContext struct {
	Signature        *signature.Signature
	DocumentHash     *hashing.Imprint
	Level            int
	PublicationsFile *pubfile.File
	TrustStore       trust.TrustStore
	CertConstraints  map[string]string
	Extender         Extender
	AllowExtending   bool
	// Now is the caller-supplied wall-clock time (unix seconds), used
	// for hash-algorithm deprecation/obsolescence checks. Threading it
	// explicitly keeps rule evaluation deterministic and testable.
	Now int64

	// Scratch fields threaded between a policy's own rules; never read
	// across policies.
	resolvedKeyCert []byte
	resolvedKeyX509 *x509.Certificate
	resolvedPubRoot *hashing.Imprint
	resolvedPubTime uint64
}
