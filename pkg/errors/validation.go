package errors

import (
	"encoding/base32"
	"strings"
	"unicode"
)

const (
	// accountAddressLength is the encoded length of a Stellar account ID (G...).
	accountAddressLength = 56

	// accountVersionByte is the StrKey version byte for ed25519 public keys (6 << 3).
	accountVersionByte = 6 << 3

	// MaxPageSize is the largest page the relations API serves.
	MaxPageSize = 200
)

// Supported network names.
const (
	NetworkPublic  = "public"
	NetworkTestnet = "testnet"
)

// ValidateAccountAddress validates a Stellar account address (StrKey "G..." form).
//
// The validation rules:
//   - Exactly 56 characters
//   - RFC 4648 base32 alphabet without padding
//   - Version byte for an ed25519 account public key
//   - Matching CRC16-XModem checksum
func ValidateAccountAddress(address string) error {
	if address == "" {
		return New(ErrCodeInvalidAddress, "account address cannot be empty")
	}

	for _, r := range address {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidAddress, "account address contains invalid characters")
		}
	}

	if len(address) != accountAddressLength {
		return New(ErrCodeInvalidAddress, "account address must be %d characters, got %d", accountAddressLength, len(address))
	}
	if !strings.HasPrefix(address, "G") {
		return New(ErrCodeInvalidAddress, "account address must start with G: %q", address)
	}

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(address)
	if err != nil {
		return Wrap(ErrCodeInvalidAddress, err, "account address is not valid base32")
	}
	if len(raw) != 35 || raw[0] != accountVersionByte {
		return New(ErrCodeInvalidAddress, "account address has an invalid version byte")
	}

	payload, sum := raw[:33], raw[33:]
	want := crc16XModem(payload)
	if got := uint16(sum[0]) | uint16(sum[1])<<8; got != want {
		return New(ErrCodeInvalidAddress, "account address checksum mismatch")
	}

	return nil
}

// ValidateNetwork validates a network name.
func ValidateNetwork(network string) error {
	switch network {
	case NetworkPublic, NetworkTestnet:
		return nil
	case "":
		return New(ErrCodeInvalidNetwork, "network cannot be empty")
	default:
		return New(ErrCodeInvalidNetwork, "unsupported network %q (want %s or %s)", network, NetworkPublic, NetworkTestnet)
	}
}

// ValidatePageSize validates the number of relation records requested per page.
func ValidatePageSize(limit int) error {
	if limit < 1 || limit > MaxPageSize {
		return New(ErrCodeInvalidInput, "page size must be between 1 and %d, got %d", MaxPageSize, limit)
	}
	return nil
}

// ValidateCursor validates an opaque paging token.
// Empty cursors are valid and request the first page.
func ValidateCursor(cursor string) error {
	if len(cursor) > 128 {
		return New(ErrCodeInvalidCursor, "cursor too long (max 128 characters)")
	}
	for _, r := range cursor {
		if r > unicode.MaxASCII || unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidCursor, "cursor contains invalid characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
