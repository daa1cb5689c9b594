package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of a Solana public key.
const PublicKeyLength = 32

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrOffCurve       = errors.New("address is not on the ed25519 curve")
)

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != PublicKeyLength {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return decoded, nil
}

// ValidateAddress accepts any well-formed account address, including
// program-derived addresses such as token mints.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// ValidateWallet additionally requires the key to be a curve point, which
// every keypair-backed wallet is and no PDA is.
func ValidateWallet(addr string) error {
	decoded, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if !isOnCurve(decoded) {
		return ErrOffCurve
	}
	return nil
}

// EncodeAddress encodes a 32-byte public key.
func EncodeAddress(key []byte) (string, error) {
	if len(key) != PublicKeyLength {
		return "", fmt.Errorf("%w: key length %d", ErrInvalidAddress, len(key))
	}
	return base58.Encode(key), nil
}

func isOnCurve(point []byte) bool {
	if len(point) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
