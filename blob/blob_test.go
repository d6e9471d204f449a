package blob_test

import (
	"bytes"
	"testing"

	"github.com/caesarchad/rustelo-easy/blob"
	"github.com/caesarchad/rustelo-easy/identity"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	sender := identity.Pubkey{0x42}
	b, err := blob.New(7, sender, []byte("entry payload"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.IsCoding = true

	raw, err := b.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(raw) != blob.HeaderSize+len(b.Data) {
		t.Fatalf("Marshal produced %d bytes, want %d", len(raw), blob.HeaderSize+len(b.Data))
	}

	got, err := blob.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Index != b.Index || got.SenderID != b.SenderID || got.IsCoding != b.IsCoding {
		t.Errorf("round trip = %+v, want matching fields of %+v", got, b)
	}
	if !bytes.Equal(got.Data, b.Data) {
		t.Errorf("round trip data = %q, want %q", got.Data, b.Data)
	}
}

func TestNewRejectsOversizePayload(t *testing.T) {
	oversized := make([]byte, blob.DataSize+1)
	if _, err := blob.New(0, identity.Pubkey{}, oversized); err != blob.ErrOversize {
		t.Fatalf("New with oversize payload = %v, want ErrOversize", err)
	}
}

func TestUnmarshalRejectsTruncatedHeader(t *testing.T) {
	if _, err := blob.Unmarshal(make([]byte, blob.HeaderSize-1)); err != blob.ErrTruncated {
		t.Fatalf("Unmarshal(short buffer) = %v, want ErrTruncated", err)
	}
}

func TestUnmarshalRejectsSizeExceedingBuffer(t *testing.T) {
	b, err := blob.New(0, identity.Pubkey{}, []byte("abc"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := b.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Claim a size bigger than the buffer actually carries.
	truncated := raw[:len(raw)-1]
	if _, err := blob.Unmarshal(truncated); err != blob.ErrOversize {
		t.Fatalf("Unmarshal with size exceeding remaining buffer = %v, want ErrOversize", err)
	}
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	b, err := blob.New(1, identity.Pubkey{0x01}, []byte("abc"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := b.Clone()
	c.Data[0] = 'z'
	if b.Data[0] == 'z' {
		t.Error("Clone shared the underlying Data slice with the original")
	}
	if c.Index != b.Index || c.SenderID != b.SenderID {
		t.Error("Clone did not copy the scalar fields")
	}
}
