package chain

import (
	"bytes"
	"strings"
	"testing"
)

func TestStrkeyRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 32)

	acct := encodeStrkey(versionAccountID, payload)
	if !strings.HasPrefix(acct, "G") {
		t.Fatalf("account strkey should start with G, got %q", acct)
	}
	seed := encodeStrkey(versionSeed, payload)
	if !strings.HasPrefix(seed, "S") {
		t.Fatalf("seed strkey should start with S, got %q", seed)
	}

	got, err := decodeStrkey(versionAccountID, acct)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %x", got)
	}
}

func TestStrkeyKnownVector(t *testing.T) {
	// Vector from the Stellar strkey documentation.
	raw := []byte{
		0x3f, 0x0c, 0x34, 0xbf, 0x93, 0xad, 0x0d, 0x99,
		0x71, 0xd0, 0x4c, 0xcc, 0x90, 0xf7, 0x05, 0x51,
		0x1c, 0x83, 0x8a, 0xad, 0x97, 0x34, 0xa4, 0xa2,
		0xfb, 0x0d, 0x7a, 0x03, 0xfc, 0x7f, 0xe8, 0x9a,
	}
	want := "GA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVSGZ"
	if got := encodeStrkey(versionAccountID, raw); got != want {
		t.Fatalf("encode mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestStrkeyDecodeRejections(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 32)
	acct := encodeStrkey(versionAccountID, payload)

	if _, err := decodeStrkey(versionSeed, acct); err == nil {
		t.Fatal("expected version mismatch error")
	}
	if _, err := decodeStrkey(versionAccountID, "not base32 !!"); err == nil {
		t.Fatal("expected base32 error")
	}

	// Corrupt a character in the middle to break the checksum.
	corrupted := []byte(acct)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}
	if _, err := decodeStrkey(versionAccountID, string(corrupted)); err == nil {
		t.Fatal("expected checksum error")
	}
}
