package pdu

import (
	"errors"
	"testing"

	"github.com/certenio/ksi-go/pkg/hashing"
	"github.com/certenio/ksi-go/pkg/tlv"
)

var testKey = []byte("anon")

func testHeader() Header {
	return Header{InstanceID: 1, MessageID: 2, LoginID: "anon"}
}

// fakeAggregationResponse builds a raw response PDU directly (bypassing
// BuildAggregationRequest, which only builds requests) so the parser can
// be exercised independently.
func fakeAggregationResponse(t *testing.T, requestID uint64, sig *tlv.Tlv) []byte {
	t.Helper()
	idEl, err := tlv.NewUint(tagAggrResponseID, false, false, requestID)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	respEl, err := tlv.NewNested(tagAggrResponse, false, false, []*tlv.Tlv{idEl, sig})
	if err != nil {
		t.Fatalf("NewNested: %v", err)
	}
	root, err := buildContainer(tagAggregationPDUv2, testHeader(), []*tlv.Tlv{respEl}, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("buildContainer: %v", err)
	}
	return tlv.Serialize(root)
}

func dummySignatureTlv(t *testing.T) *tlv.Tlv {
	t.Helper()
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte("signature-placeholder"))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	el, err := tlv.NewRaw(tagAggrResponseSig, false, false, im.Bytes())
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	return el
}

func TestAggregationResponseRoundTrip(t *testing.T) {
	raw := fakeAggregationResponse(t, 42, dummySignatureTlv(t))
	resp, err := ParseAggregationResponse(raw, 42, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("ParseAggregationResponse: %v", err)
	}
	if resp.RequestID != 42 {
		t.Errorf("RequestID = %d, want 42", resp.RequestID)
	}
	if resp.Header.LoginID != "anon" {
		t.Errorf("LoginID = %q, want anon", resp.Header.LoginID)
	}
}

func TestAggregationResponseRequestIDMismatch(t *testing.T) {
	raw := fakeAggregationResponse(t, 42, dummySignatureTlv(t))
	_, err := ParseAggregationResponse(raw, 43, hashing.SHA256, testKey)
	if !errors.Is(err, ErrRequestIDMismatch) {
		t.Fatalf("err = %v, want ErrRequestIDMismatch", err)
	}
}

func TestAggregationResponseWrongKeyFailsAuthentication(t *testing.T) {
	raw := fakeAggregationResponse(t, 42, dummySignatureTlv(t))
	_, err := ParseAggregationResponse(raw, 42, hashing.SHA256, []byte("wrong"))
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestAggregationResponseWrongHmacAlgorithm(t *testing.T) {
	raw := fakeAggregationResponse(t, 42, dummySignatureTlv(t))
	_, err := ParseAggregationResponse(raw, 42, hashing.SHA384, testKey)
	if !errors.Is(err, ErrHmacAlgorithmMismatch) {
		t.Fatalf("err = %v, want ErrHmacAlgorithmMismatch", err)
	}
}

func TestBuildAggregationRequestRejectsDeprecatedAlgorithm(t *testing.T) {
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte("doc"))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	_, err = BuildAggregationRequest(testHeader(), 1, im, 0, hashing.SHA1, testKey, 1600000000)
	if err == nil {
		t.Fatal("expected error building request with a deprecated-for-new-use hmac algorithm")
	}
}

func TestBuildAggregationRequestShape(t *testing.T) {
	im, err := hashing.ComputeImprint(hashing.SHA256, []byte("doc"))
	if err != nil {
		t.Fatalf("ComputeImprint: %v", err)
	}
	req, err := BuildAggregationRequest(testHeader(), 7, im, 3, hashing.SHA256, testKey, 1700000000)
	if err != nil {
		t.Fatalf("BuildAggregationRequest: %v", err)
	}
	children := req.Children()
	if len(children) != 3 {
		t.Fatalf("len(children) = %d, want 3 (header + request payload + hmac)", len(children))
	}
	if children[0].Tag != tagHeader {
		t.Errorf("first child tag = 0x%x, want header", children[0].Tag)
	}
	if children[len(children)-1].Tag != tagHmac {
		t.Errorf("last child tag = 0x%x, want hmac", children[len(children)-1].Tag)
	}
}

func TestExtendResponseRoundTrip(t *testing.T) {
	chainEl, err := tlv.NewRaw(tagExtendResponseChain, false, false, []byte("calendar-chain-placeholder"))
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	idEl, err := tlv.NewUint(tagExtendResponseID, false, false, 9)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	respEl, err := tlv.NewNested(tagExtendResponse, false, false, []*tlv.Tlv{idEl, chainEl})
	if err != nil {
		t.Fatalf("NewNested: %v", err)
	}
	root, err := buildContainer(tagExtendPDUv2, testHeader(), []*tlv.Tlv{respEl}, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("buildContainer: %v", err)
	}
	raw := tlv.Serialize(root)

	resp, err := ParseExtendResponse(raw, 9, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("ParseExtendResponse: %v", err)
	}
	if resp.RequestID != 9 {
		t.Errorf("RequestID = %d, want 9", resp.RequestID)
	}
	if string(resp.CalendarChain.RawValue()) != "calendar-chain-placeholder" {
		t.Errorf("CalendarChain payload mismatch")
	}
}

func TestParseAggregationResponseServiceError(t *testing.T) {
	statusEl, err := tlv.NewUint(tagErrorStatus, false, false, 0x101)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	msgEl, err := tlv.NewString(tagErrorMessage, false, false, "upstream unavailable")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	errEl, err := tlv.NewNested(tagErrorPayload, false, false, []*tlv.Tlv{statusEl, msgEl})
	if err != nil {
		t.Fatalf("NewNested: %v", err)
	}
	root, err := buildContainer(tagAggregationPDUv2, testHeader(), []*tlv.Tlv{errEl}, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("buildContainer: %v", err)
	}
	raw := tlv.Serialize(root)

	_, err = ParseAggregationResponse(raw, 1, hashing.SHA256, testKey)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %v, want *ServiceError", err)
	}
	if svcErr.Status != 0x101 || svcErr.Message != "upstream unavailable" {
		t.Errorf("ServiceError = %+v, unexpected contents", svcErr)
	}
}

func TestParseAggregationResponseRejectsV1Shape(t *testing.T) {
	idEl, err := tlv.NewUint(tagAggrResponseID, false, false, 1)
	if err != nil {
		t.Fatalf("NewUint: %v", err)
	}
	root, err := buildContainer(tagAggregationPDUv1, testHeader(), []*tlv.Tlv{idEl}, hashing.SHA256, testKey)
	if err != nil {
		t.Fatalf("buildContainer: %v", err)
	}
	raw := tlv.Serialize(root)
	_, err = ParseAggregationResponse(raw, 1, hashing.SHA256, testKey)
	if !errors.Is(err, ErrAggrPduV1ResponseToV2) {
		t.Fatalf("err = %v, want ErrAggrPduV1ResponseToV2", err)
	}
}
