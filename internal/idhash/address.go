package idhash

import (
	"crypto/sha256"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const addressMarker = "StakegateSystemAddress"

// DeriveSystemAddress derives the address of a system account (treasury,
// burn sink) from its name. The result is a base58 SHA256 digest that is not
// a valid ed25519 point, so no private key can sign for it.
// Formula: SHA256(name|namespace|bump|marker), bump searched from 255 down.
func DeriveSystemAddress(namespace, name string) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(name)+len(namespace)+len(addressMarker)+3)
		data = append(data, name...)
		data = append(data, '|')
		data = append(data, namespace...)
		data = append(data, '|', bump)
		data = append(data, addressMarker...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}
	return ""
}

// IsOnCurve reports whether point decodes to a valid ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
