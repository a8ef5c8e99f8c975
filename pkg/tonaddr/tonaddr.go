// Package tonaddr implements the friendly/raw address conversions the
// gateway needs to normalize the addresses its HTTP layer receives and to honor
// the round-trip property of §8 ("pack(unpack(friendly_addr)) ==
// friendly_addr"). It is a direct port of address_utils.py's CRC16/XMODEM
// checksum and tag-byte scheme, not a tonlib binding.
package tonaddr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	bounceableTag    byte = 0x11
	nonBounceableTag byte = 0x51
	testOnlyFlag     byte = 0x80
)

// Forms holds every representation of one account address, mirroring
// account_forms's returned dict.
type Forms struct {
	RawForm       string
	BounceableB64 string
	BounceableURL string
	NonBounceB64  string
	NonBounceURL  string
	GivenType     string
	TestOnly      bool
}

// crc16XModem computes the CRC16/XMODEM checksum over message, matching
// address_utils.py's calcCRC bit-by-bit implementation.
func crc16XModem(message []byte) [2]byte {
	const poly = 0x1021
	reg := 0
	padded := append(append([]byte{}, message...), 0x00, 0x00)
	for _, b := range padded {
		mask := byte(0x80)
		for mask > 0 {
			reg <<= 1
			if b&mask != 0 {
				reg++
			}
			mask >>= 1
			if reg > 0xffff {
				reg &= 0xffff
				reg ^= poly
			}
		}
	}
	return [2]byte{byte(reg >> 8), byte(reg)}
}

// AccountForms builds every encoded form of a "workchain:hex-address" raw
// address. testOnly sets the high bit of the tag byte, per the source's
// (dead) test_only branch — preserved here for a faithful round trip even
// though the source never actually sets it.
func AccountForms(rawForm string, testOnly bool) (Forms, error) {
	parts := strings.SplitN(rawForm, ":", 2)
	if len(parts) != 2 {
		return Forms{}, fmt.Errorf("tonaddr: invalid raw form %q", rawForm)
	}
	workchain, err := strconv.Atoi(parts[0])
	if err != nil {
		return Forms{}, fmt.Errorf("tonaddr: invalid workchain in %q: %w", rawForm, err)
	}
	addrInt, ok := new(big.Int).SetString(parts[1], 16)
	if !ok {
		return Forms{}, fmt.Errorf("tonaddr: invalid hex address in %q", rawForm)
	}
	addrBytes := make([]byte, 32)
	addrInt.FillBytes(addrBytes)

	workchainTag := byte(workchain)
	if workchain == -1 {
		workchainTag = 0xff
	}

	btag, nbtag := bounceableTag, nonBounceableTag
	if testOnly {
		btag |= testOnlyFlag
		nbtag |= testOnlyFlag
	}

	preB := append([]byte{btag, workchainTag}, addrBytes...)
	preU := append([]byte{nbtag, workchainTag}, addrBytes...)

	crcB := crc16XModem(preB)
	crcU := crc16XModem(preU)
	fullB := append(append([]byte{}, preB...), crcB[:]...)
	fullU := append(append([]byte{}, preU...), crcU[:]...)

	return Forms{
		RawForm:       rawForm,
		BounceableB64: base64.StdEncoding.EncodeToString(fullB),
		BounceableURL: base64.URLEncoding.EncodeToString(fullB),
		NonBounceB64:  base64.StdEncoding.EncodeToString(fullU),
		NonBounceURL:  base64.URLEncoding.EncodeToString(fullU),
		GivenType:     "raw_form",
		TestOnly:      testOnly,
	}, nil
}

// ReadFriendlyAddress parses a base64 / base64url friendly address back
// into its raw form plus every other encoding, verifying the CRC16
// checksum embedded in the last two bytes.
func ReadFriendlyAddress(address string) (Forms, error) {
	var decoded []byte
	var err error
	if isStandardB64(address) {
		decoded, err = base64.StdEncoding.DecodeString(address)
	} else if isURLB64(address) {
		decoded, err = base64.URLEncoding.DecodeString(address)
	} else {
		return Forms{}, errors.New("tonaddr: not an address")
	}
	if err != nil {
		return Forms{}, fmt.Errorf("tonaddr: %w", err)
	}
	if len(decoded) != 36 {
		return Forms{}, errors.New("tonaddr: wrong length")
	}
	want := crc16XModem(decoded[:34])
	if decoded[34] != want[0] || decoded[35] != want[1] {
		return Forms{}, errors.New("tonaddr: wrong checksum")
	}

	tag := decoded[0]
	testOnly := false
	if tag&testOnlyFlag != 0 {
		testOnly = true
		tag ^= testOnlyFlag
	}

	var bounceable bool
	switch tag {
	case bounceableTag:
		bounceable = true
	case nonBounceableTag:
		bounceable = false
	default:
		return Forms{}, errors.New("tonaddr: unknown tag")
	}

	var workchain int
	if decoded[1] == 0xff {
		workchain = -1
	} else {
		workchain = int(decoded[1])
	}
	hexAddr := fmt.Sprintf("%064x", decoded[2:34])
	raw := fmt.Sprintf("%d:%s", workchain, hexAddr)

	forms, err := AccountForms(raw, testOnly)
	if err != nil {
		return Forms{}, err
	}
	if bounceable {
		forms.GivenType = "friendly_bounceable"
	} else {
		forms.GivenType = "friendly_non_bounceable"
	}
	return forms, nil
}

// DetectAddress classifies an address string in raw-hex, "wc:hex", or
// friendly form and returns every encoding for it.
func DetectAddress(unknown string) (Forms, error) {
	if isHex(unknown) {
		return AccountForms("-1:"+unknown, false)
	}
	if idx := strings.Index(unknown, ":"); idx >= 0 {
		wc, hexPart := unknown[:idx], unknown[idx+1:]
		if _, err := strconv.Atoi(wc); err == nil && isHex(hexPart) {
			return AccountForms(unknown, false)
		}
	}
	return ReadFriendlyAddress(unknown)
}

// Prepare normalizes any address form to the canonical bounceable (or
// non-bounceable, if that's how it was given) base64 friendly form, the
// way prepare_address feeds addresses into every liteserver call.
func Prepare(unknown string) (string, error) {
	f, err := DetectAddress(unknown)
	if err != nil {
		return "", err
	}
	if strings.Contains(f.GivenType, "non_bounceable") {
		return f.NonBounceB64, nil
	}
	return f.BounceableB64, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

func isStandardB64(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890+/=", r) {
			return false
		}
	}
	return true
}

func isURLB64(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890_-=", r) {
			return false
		}
	}
	return true
}
