package solana

import (
	"errors"
	"testing"

	"filippo.io/edwards25519"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"wrapped SOL mint", "So11111111111111111111111111111111111111112", false},
		{"system program", "11111111111111111111111111111111", false},
		{"empty", "", true},
		{"invalid alphabet", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", true},
		{"too short", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("expected ErrInvalidAddress, got %v", err)
			}
		})
	}
}

func TestValidateWallet(t *testing.T) {
	// The base point is on the curve.
	onCurve, err := EncodeAddress(edwards25519.NewGeneratorPoint().Bytes())
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	if err := ValidateWallet(onCurve); err != nil {
		t.Errorf("ValidateWallet(generator) = %v, want nil", err)
	}

	// y = 2 has no valid x on ed25519.
	off := make([]byte, PublicKeyLength)
	off[0] = 2
	offCurve, _ := EncodeAddress(off)
	if err := ValidateWallet(offCurve); !errors.Is(err, ErrOffCurve) {
		t.Errorf("ValidateWallet(off-curve) = %v, want ErrOffCurve", err)
	}

	if err := ValidateWallet("bad"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ValidateWallet(bad) = %v, want ErrInvalidAddress", err)
	}
}

func TestEncodeAddress_Length(t *testing.T) {
	if _, err := EncodeAddress([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short key")
	}
}
