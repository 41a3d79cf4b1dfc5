package codec

import "testing"

func TestMetaRoundTrip(t *testing.T) {
	m := Meta{
		MaxDegree:        10,
		NumberOfPages:    3,
		FirstDeletedPage: Sentinel,
		RootPageID:       0,
	}

	buf := EncodeMeta(m)
	if len(buf) != MetaSize {
		t.Fatalf("expected %d bytes, got %d", MetaSize, len(buf))
	}

	decoded := DecodeMeta(buf)
	if decoded != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
}

func TestPageSize(t *testing.T) {
	tests := []struct {
		degree uint16
		want   int
	}{
		{4, 49},   // 9 + 4*3 + 4*4 + 4*3
		{10, 121}, // 9 + 4*9 + 4*10 + 4*9
	}

	for _, tt := range tests {
		if got := PageSize(tt.degree); got != tt.want {
			t.Errorf("PageSize(%d) = %d, want %d", tt.degree, got, tt.want)
		}
	}
}

func TestNodePageRoundTripLeaf(t *testing.T) {
	degree := uint16(4)
	page := NodePage{
		PageID:          2,
		Deleted:         false,
		NextDeletedPage: Sentinel,
		Keys:            []uint32{1, 5, 6},
		Children:        nil,
		Values:          []uint32{10, 50, 60},
	}

	buf, err := EncodeNodePage(page, degree)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(buf) != PageSize(degree) {
		t.Fatalf("expected %d bytes, got %d", PageSize(degree), len(buf))
	}

	decoded, err := DecodeNodePage(buf, degree)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.PageID != page.PageID || decoded.Deleted != page.Deleted {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if len(decoded.Children) != 0 {
		t.Fatalf("expected no children, got %v", decoded.Children)
	}
	if !uint32SliceEqual(decoded.Keys, page.Keys) {
		t.Errorf("keys mismatch: got %v, want %v", decoded.Keys, page.Keys)
	}
	if !uint32SliceEqual(decoded.Values, page.Values) {
		t.Errorf("values mismatch: got %v, want %v", decoded.Values, page.Values)
	}
}

func TestNodePageRoundTripInternal(t *testing.T) {
	degree := uint16(4)
	page := NodePage{
		PageID:          0,
		Deleted:         false,
		NextDeletedPage: Sentinel,
		Keys:            []uint32{50},
		Children:        []uint32{1, 2},
		Values:          nil,
	}

	buf, err := EncodeNodePage(page, degree)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeNodePage(buf, degree)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !uint32SliceEqual(decoded.Children, page.Children) {
		t.Errorf("children mismatch: got %v, want %v", decoded.Children, page.Children)
	}
	if len(decoded.Values) != 0 {
		t.Fatalf("expected no values, got %v", decoded.Values)
	}
}

func TestEncodeNodePageRejectsSentinelID(t *testing.T) {
	_, err := EncodeNodePage(NodePage{PageID: Sentinel}, 4)
	if err == nil {
		t.Fatal("expected error encoding sentinel page id")
	}
}

func TestDecodeNodePageDetectsCorruption(t *testing.T) {
	degree := uint16(4)
	buf := make([]byte, PageSize(degree))
	for i := range buf {
		buf[i] = 0xFF
	}
	// page_id left at sentinel: corrupt page.
	if _, err := DecodeNodePage(buf, degree); err == nil {
		t.Fatal("expected corruption error for sentinel page id")
	}
}

func TestOptionalHelpers(t *testing.T) {
	if got := EncodeOptional(5, true); got != 5 {
		t.Errorf("EncodeOptional(5, true) = %d, want 5", got)
	}
	if got := EncodeOptional(5, false); got != Sentinel {
		t.Errorf("EncodeOptional(5, false) = %#x, want sentinel", got)
	}

	if v, ok := DecodeOptional(Sentinel); ok || v != 0 {
		t.Errorf("DecodeOptional(sentinel) = (%d, %v), want (0, false)", v, ok)
	}
	if v, ok := DecodeOptional(7); !ok || v != 7 {
		t.Errorf("DecodeOptional(7) = (%d, %v), want (7, true)", v, ok)
	}
}

func uint32SliceEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
