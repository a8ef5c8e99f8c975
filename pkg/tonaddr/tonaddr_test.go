package tonaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountFormsRoundTrip(t *testing.T) {
	raw := "-1:" + "083dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1893191a7e74"
	forms, err := AccountForms(raw, false)
	require.NoError(t, err)
	require.NotEmpty(t, forms.BounceableB64)

	parsed, err := ReadFriendlyAddress(forms.BounceableB64)
	require.NoError(t, err)
	assert.Equal(t, raw, parsed.RawForm)
	assert.Equal(t, "friendly_bounceable", parsed.GivenType)

	// pack(unpack(friendly_addr)) == friendly_addr
	repacked, err := AccountForms(parsed.RawForm, false)
	require.NoError(t, err)
	assert.Equal(t, forms.BounceableB64, repacked.BounceableB64)
}

func TestReadFriendlyAddressBadChecksum(t *testing.T) {
	hex64 := "0000000000000000000000000000000000000000000000000000000000000001"
	hex64 = hex64[len(hex64)-64:]
	forms, err := AccountForms("0:"+hex64, false)
	require.NoError(t, err)
	tampered := []byte(forms.BounceableB64)
	tampered[0] = 'A'
	if tampered[0] == forms.BounceableB64[0] {
		tampered[0] = 'B'
	}
	_, err = ReadFriendlyAddress(string(tampered))
	assert.Error(t, err)
}

func TestDetectAddressRawHex(t *testing.T) {
	forms, err := DetectAddress("83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1893191a7e74")
	require.NoError(t, err)
	assert.Equal(t, "-1:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1893191a7e74", forms.RawForm)
}

func TestPrepareAddress(t *testing.T) {
	raw := "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1893191a7e74"
	prepared, err := Prepare(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, prepared)

	again, err := Prepare(prepared)
	require.NoError(t, err)
	assert.Equal(t, prepared, again)
}
