package policy

import "github.com/certenio/ksi-go/pkg/trust"

// KeyPolicy validates a signature's cal_auth record as a PKCS#1
// signature over its pub_data, using a certificate looked up in the
// publications file by cert_id (spec.md §4.4 "Key-based policy").
func KeyPolicy() *Policy {
	return &Policy{
		Name: "key",
		Rules: []Rule{
			ruleKeyCalAuthPresent,
			ruleKeyCertificateFound,
			ruleKeySignatureVerifies,
			ruleKeyCertificateTrusted,
		},
	}
}

func ruleKeyCalAuthPresent(ctx *VerificationContext) Result {
	if ctx.Signature.CalAuth == nil {
		return NaResult()
	}
	return OkResult()
}

func ruleKeyCertificateFound(ctx *VerificationContext) Result {
	if ctx.PublicationsFile == nil {
		return NaResult()
	}
	certID, ok := certIDOf(ctx.Signature.CalAuth.SigData.CertID)
	if !ok {
		return FailResult("KEY-1", "cal_auth sig_data carries a malformed cert_id")
	}
	rec, ok := ctx.PublicationsFile.CertByID(certID)
	if !ok {
		return FailResult("KEY-1", "no certificate in the publications file matches cert_id %08x", certID)
	}
	ctx.resolvedKeyCert = rec.Certificate
	return OkResult()
}

func ruleKeySignatureVerifies(ctx *VerificationContext) Result {
	if ctx.TrustStore == nil {
		return NaResult()
	}
	cert, err := ctx.TrustStore.CertFromDER(ctx.resolvedKeyCert)
	if err != nil {
		return FailResult("KEY-2", "decoding cal_auth certificate: %v", err)
	}
	payload, err := ctx.Signature.CalAuth.PubData.Bytes()
	if err != nil {
		return FailResult("KEY-2", "serializing pub_data: %v", err)
	}
	if err := ctx.TrustStore.VerifyPKCS1(payload, ctx.Signature.CalAuth.SigAlgo, ctx.Signature.CalAuth.SigData.SignatureValue, cert); err != nil {
		return FailResult("KEY-2", "pkcs1 signature verification failed: %v", err)
	}
	ctx.resolvedKeyX509 = cert
	return OkResult()
}

func ruleKeyCertificateTrusted(ctx *VerificationContext) Result {
	if err := ctx.TrustStore.IsTrusted(ctx.resolvedKeyX509); err != nil {
		return FailResult("KEY-3", "certificate is not trusted: %v", err)
	}
	if len(ctx.CertConstraints) > 0 {
		if err := ctx.TrustStore.CheckConstraints(ctx.resolvedKeyX509, ctx.CertConstraints); err != nil {
			return FailResult("KEY-3", "certificate does not satisfy configured constraints: %v", err)
		}
	}
	return OkResult()
}

func certIDOf(raw []byte) (uint32, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), true
}

var _ = trust.TrustStore(nil) // documents the collaborator this policy depends on
