package pubfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
	"github.com/certenio/ksi-go/pkg/trust"
	"github.com/digitorus/pkcs7"
)

func trustCert(t *testing.T, store *trust.X509TrustStore, cert *x509.Certificate) {
	t.Helper()
	path := t.TempDir() + "/signer.pem"
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := store.AddLookupFile(path); err != nil {
		t.Fatalf("AddLookupFile: %v", err)
	}
}

func testImprint(t *testing.T, s string) hashing.Imprint {
	t.Helper()
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte(s))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	return im
}

func selfSignedCert(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ksi-go pubfile test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert, key
}

func buildUnsignedFile(t *testing.T) (*tlv.Tlv, hashing.Imprint) {
	t.Helper()
	hash := testImprint(t, "calendar root")

	header, err := tlv.NewNested(tagHeader, false, false, nil)
	if err != nil {
		t.Fatalf("NewNested header: %v", err)
	}
	createEl, err := tlv.NewUint(tagHeaderCreate, false, false, 1700000000)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	if err := header.AppendChild(createEl); err != nil {
		t.Fatalf("AppendChild: %v", err)
	}

	timeEl, err := tlv.NewUint(tagPubDataTime, false, false, 1700000000)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	hashEl, err := tlv.NewRaw(tagPubDataHash, false, false, hash.Bytes())
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	pubData, err := tlv.NewNested(tagPubData, false, false, []*tlv.Tlv{timeEl, hashEl})
	if err != nil {
		t.Fatalf("NewNested pub_data: %v", err)
	}
	pubRecord, err := tlv.NewNested(tagPublicationRecord, false, false, []*tlv.Tlv{pubData})
	if err != nil {
		t.Fatalf("NewNested publication record: %v", err)
	}

	root, err := tlv.NewNested(TagPublicationsFile, false, false, []*tlv.Tlv{header, pubRecord})
	if err != nil {
		t.Fatalf("NewNested root: %v", err)
	}
	return root, hash
}

func signAndAppend(t *testing.T, unsigned *tlv.Tlv, cert *x509.Certificate, key *rsa.PrivateKey) []byte {
	t.Helper()
	content := unsigned.RawValue()

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	if err := sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	sd.Detach()
	sigBytes, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	sigEl, err := tlv.NewRaw(tagSignature, false, false, sigBytes)
	if err != nil {
		t.Fatalf("NewRaw signature: %v", err)
	}

	full, err := tlv.NewNested(TagPublicationsFile, false, false, append(unsigned.Children(), sigEl))
	if err != nil {
		t.Fatalf("NewNested full: %v", err)
	}
	return tlv.Serialize(full)
}

func TestParseExtractsHeaderAndPublications(t *testing.T) {
	cert, key := selfSignedCert(t)
	unsigned, hash := buildUnsignedFile(t)
	raw := signAndAppend(t, unsigned, cert, key)

	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.CreationTime != 1700000000 {
		t.Errorf("CreationTime = %d, want 1700000000", f.CreationTime)
	}
	if len(f.Publications) != 1 {
		t.Fatalf("len(Publications) = %d, want 1", len(f.Publications))
	}
	if !f.Publications[0].PublicationHash.Equal(hash) {
		t.Errorf("publication hash mismatch")
	}
	if _, ok := f.FindPublication(1700000000, hash); !ok {
		t.Errorf("FindPublication did not find the known entry")
	}
}

func TestParseRejectsMissingSignature(t *testing.T) {
	unsigned, _ := buildUnsignedFile(t)
	raw := tlv.Serialize(unsigned)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error parsing a publications file with no trailing signature")
	}
}

func TestVerifyAcceptsTrustedSigner(t *testing.T) {
	cert, key := selfSignedCert(t)
	unsigned, _ := buildUnsignedFile(t)
	raw := signAndAppend(t, unsigned, cert, key)

	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	store := trust.NewX509TrustStore()
	trustCert(t, store, cert)

	if err := f.Verify(store, nil); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsUntrustedSigner(t *testing.T) {
	cert, key := selfSignedCert(t)
	unsigned, _ := buildUnsignedFile(t)
	raw := signAndAppend(t, unsigned, cert, key)

	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	store := trust.NewX509TrustStore()
	if err := f.Verify(store, nil); err == nil {
		t.Fatal("expected error verifying against an empty trust store")
	}
}

func TestCertByID(t *testing.T) {
	f := &File{Certificates: []CertRecord{{CertID: 42, Certificate: []byte("der")}}}
	if _, ok := f.CertByID(42); !ok {
		t.Fatal("expected to find cert_id 42")
	}
	if _, ok := f.CertByID(7); ok {
		t.Fatal("did not expect to find cert_id 7")
	}
}
