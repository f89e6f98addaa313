package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"

	"golang.org/x/crypto/hkdf"
)

// HMACIP anonymizes IPv4 to /24 (IPv6 to /48), then HMACs it for logs.
func HMACIP(ipStr string, key []byte) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown"
	}
	var cidr string
	if v4 := ip.To4(); v4 != nil {
		cidr = v4.Mask(net.CIDRMask(24, 32)).String()
	} else {
		cidr = ip.Mask(net.CIDRMask(48, 128)).String()
	}
	m := hmac.New(sha256.New, key)
	m.Write([]byte(cidr))
	return hex.EncodeToString(m.Sum(nil))[:16]
}

// DeriveKey expands secret into a purpose-bound subkey of n bytes.
func DeriveKey(secret []byte, purpose string, n int) ([]byte, error) {
	out := make([]byte, n)
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
