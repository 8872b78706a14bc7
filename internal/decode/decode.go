// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package decode implements the compact wire-format decoders used by the
// stateful ingest worker: geohash positions, base62-packed integers,
// base64-packed BSSIDs, and OUI-to-vendor lookup.
package decode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrDecodeFailed marks a field that was present but could not be decoded.
// It never reaches the enriched payload itself - the transformer turns it
// into a warning string, which the ingest worker logs.
var ErrDecodeFailed = errors.New("decode: field present but undecodable")

// geohashPrecisionMeters maps a geohash string length to the approximate
// positional error in meters at that length.
var geohashPrecisionMeters = map[int]float64{
	1:  5000000,
	2:  1250000,
	3:  156000,
	4:  39000,
	5:  4900,
	6:  1200,
	7:  152,
	8:  38,
	9:  5,
	10: 1,
	11: 1,
	12: 1,
}

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Geohash is a decoded geohash position together with its approximate
// precision in meters, derived from the source string's length.
type Geohash struct {
	Latitude, Longitude float64
	PrecisionMeters     float64
}

// DecodeGeohash decodes a standard base32 geohash string into a
// latitude/longitude pair plus an approximate precision.
func DecodeGeohash(hash string) (Geohash, error) {
	if hash == "" {
		return Geohash{}, fmt.Errorf("%w: empty geohash", ErrDecodeFailed)
	}
	if len(hash) > 12 {
		return Geohash{}, fmt.Errorf("%w: geohash %q exceeds max length 12", ErrDecodeFailed, hash)
	}

	latRange := [2]float64{-90.0, 90.0}
	lonRange := [2]float64{-180.0, 180.0}
	isEven := true

	for _, c := range strings.ToLower(hash) {
		idx := strings.IndexRune(geohashAlphabet, c)
		if idx < 0 {
			return Geohash{}, fmt.Errorf("%w: invalid geohash character %q", ErrDecodeFailed, c)
		}

		for bit := 4; bit >= 0; bit-- {
			bitval := (idx >> uint(bit)) & 1
			if isEven {
				mid := (lonRange[0] + lonRange[1]) / 2
				if bitval == 1 {
					lonRange[0] = mid
				} else {
					lonRange[1] = mid
				}
			} else {
				mid := (latRange[0] + latRange[1]) / 2
				if bitval == 1 {
					latRange[0] = mid
				} else {
					latRange[1] = mid
				}
			}
			isEven = !isEven
		}
	}

	precision, ok := geohashPrecisionMeters[len(hash)]
	if !ok {
		precision = 5000000 // unrecognized length: treat as least precise, not most
	}

	return Geohash{
		Latitude:        (latRange[0] + latRange[1]) / 2,
		Longitude:       (lonRange[0] + lonRange[1]) / 2,
		PrecisionMeters: precision,
	}, nil
}

// base62Alphabet orders digits, then uppercase, then lowercase - matching
// the upstream ingest service's packing order exactly (not the more common
// lower-then-upper ordering).
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DecodeBase62 decodes a big-endian base62 string into an unbounded
// integer, matching the upstream packer's alphabet ordering.
func DecodeBase62(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty base62 string", ErrDecodeFailed)
	}

	base := big.NewInt(int64(len(base62Alphabet)))
	num := new(big.Int)
	for _, c := range s {
		idx := strings.IndexRune(base62Alphabet, c)
		if idx < 0 {
			return nil, fmt.Errorf("%w: invalid base62 character %q", ErrDecodeFailed, c)
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}
	return num, nil
}

// DecodeBSSIDBase64 decodes a (possibly under-padded) base64-encoded BSSID
// into its canonical lowercase colon-hex form. The encoded value must
// decode to exactly 6 bytes.
func DecodeBSSIDBase64(s string) (string, error) {
	padded := s + strings.Repeat("=", (4-len(s)%4)%4)
	raw, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return "", fmt.Errorf("%w: bssid base64 decode: %v", ErrDecodeFailed, err)
	}
	if len(raw) != 6 {
		return "", fmt.Errorf("%w: bssid decodes to %d bytes, want 6", ErrDecodeFailed, len(raw))
	}

	parts := make([]string, 6)
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":"), nil
}

// FormatBSSID normalizes a raw MAC/BSSID string (with or without
// separators) into canonical lowercase colon-hex form. Used for prior
// freshness values carried forward in their already-decoded form.
func FormatBSSID(raw string) (string, error) {
	cleaned := strings.ToLower(raw)
	cleaned = strings.NewReplacer(":", "", "-", "", " ", "").Replace(cleaned)
	if len(cleaned) != 12 {
		return "", fmt.Errorf("%w: bssid %q is not 12 hex chars", ErrDecodeFailed, raw)
	}
	for _, c := range cleaned {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", fmt.Errorf("%w: bssid %q contains non-hex characters", ErrDecodeFailed, raw)
		}
	}

	parts := make([]string, 6)
	for i := 0; i < 6; i++ {
		parts[i] = cleaned[i*2 : i*2+2]
	}
	return strings.Join(parts, ":"), nil
}

// VendorLookup resolves a BSSID's OUI (organizationally unique identifier,
// its first three octets) to a vendor name. The table itself is populated
// by an out-of-scope bootstrap process (IEEE OUI registry download) and
// handed to this package read-only.
type VendorLookup struct {
	byOUI map[string]string
}

// NewVendorLookup wraps a pre-populated OUI->vendor table.
func NewVendorLookup(byOUI map[string]string) *VendorLookup {
	return &VendorLookup{byOUI: byOUI}
}

// Lookup returns the vendor name for a canonical colon-hex BSSID, if known.
func (v *VendorLookup) Lookup(bssid string) (string, bool) {
	if v == nil || v.byOUI == nil {
		return "", false
	}

	oui := strings.ToUpper(strings.ReplaceAll(bssid, ":", ""))
	if len(oui) < 6 {
		return "", false
	}
	vendor, ok := v.byOUI[oui[:6]]
	return vendor, ok
}
