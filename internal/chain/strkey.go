package chain

import (
	"encoding/base32"
	"errors"
)

// Stellar strkey version bytes: ed25519 public keys render as G..., seeds
// as S...
const (
	versionAccountID byte = 6 << 3
	versionSeed      byte = 18 << 3
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodeStrkey renders 32 bytes of key material in Stellar's strkey format:
// version byte, payload, CRC16-XModem checksum (little-endian), base32.
func encodeStrkey(version byte, payload []byte) string {
	raw := make([]byte, 0, 1+len(payload)+2)
	raw = append(raw, version)
	raw = append(raw, payload...)
	crc := crc16(raw)
	raw = append(raw, byte(crc&0xff), byte(crc>>8))
	return b32.EncodeToString(raw)
}

// decodeStrkey reverses encodeStrkey, validating version and checksum.
func decodeStrkey(version byte, encoded string) ([]byte, error) {
	raw, err := b32.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) < 3 {
		return nil, errors.New("strkey too short")
	}
	if raw[0] != version {
		return nil, errors.New("unexpected strkey version")
	}
	body, check := raw[:len(raw)-2], raw[len(raw)-2:]
	crc := crc16(body)
	if check[0] != byte(crc&0xff) || check[1] != byte(crc>>8) {
		return nil, errors.New("strkey checksum mismatch")
	}
	return body[1:], nil
}

// crc16 implements CRC16-XModem (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
