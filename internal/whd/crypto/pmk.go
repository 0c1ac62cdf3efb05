// Package crypto derives the pre-shared key material the join state
// machine installs into firmware: the IEEE 802.11i PBKDF2 transform from
// passphrase and SSID to a 256-bit PMK.
//
// Uses the 802.11i PBKDF2 parameterization: HMAC-SHA1, 4096 iterations,
// 32-byte output.
package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"net"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Infineon/whd-expansion/internal/whd/domain"
)

const (
	pbkdf2Iterations = 4096
	pmkLen           = 32
	pmkidLen         = 16
)

// DerivePMK implements the 802.11i PSK transform: PBKDF2-HMAC-SHA1 over
// the passphrase, salted with the SSID, 4096 iterations, 256-bit output.
func DerivePMK(passphrase, ssid string) ([]byte, error) {
	if len(passphrase) < domain.MinPSKKeyLength || len(passphrase) > domain.MaxPSKKeyLength {
		return nil, fmt.Errorf("whd/crypto: passphrase length: %w", domain.ErrInvalidKeyLen)
	}
	if len(ssid) == 0 || len(ssid) > domain.MaxSSIDLength {
		return nil, fmt.Errorf("whd/crypto: ssid length: %w", domain.ErrInvalidSSIDLen)
	}
	return pbkdf2.Key([]byte(passphrase), []byte(ssid), pbkdf2Iterations, pmkLen, sha1.New), nil
}

// DerivePMKID implements the 802.11i PMKID transform:
// HMAC-SHA1(PMK, "PMK Name" || AA || SPA), truncated to 128 bits. aa is
// the AP's BSSID, spa the station's own MAC.
func DerivePMKID(pmk []byte, aa, spa net.HardwareAddr) ([]byte, error) {
	if len(aa) != 6 || len(spa) != 6 {
		return nil, fmt.Errorf("whd/crypto: derive pmkid: %w", domain.ErrBadArgument)
	}
	mac := hmac.New(sha1.New, pmk)
	mac.Write([]byte("PMK Name"))
	mac.Write(aa)
	mac.Write(spa)
	return mac.Sum(nil)[:pmkidLen], nil
}
