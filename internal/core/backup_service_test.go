package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSnapshot(t *testing.T) {
	snap := &Snapshot{
		Version: snapshotVersion,
		TakenAt: time.Date(2026, 3, 31, 20, 0, 0, 0, time.UTC),
		Company: Company{ID: 1, CompanyCode: "1000", Name: "Desert Rose Trading", BaseCurrency: "AED", VATRate: dec("5")},
		Accounts: []Account{
			{ID: 1, Code: "1010", NameEN: "Bank Account", NameAR: "الحساب المصرفي", Type: Asset, IsActive: true},
		},
		Receipts: []Receipt{{ID: 7, VendorName: "ENOC", NetAmount: dec("100"), VATAmount: dec("5"), TotalAmount: dec("105")}},
	}

	payload, checksum, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	assert.Len(t, checksum, 64)
	require.NoError(t, VerifyChecksum(payload, checksum))

	var back Snapshot
	require.NoError(t, json.Unmarshal(payload, &back))
	assert.Equal(t, "Desert Rose Trading", back.Company.Name)
	assert.Equal(t, "الحساب المصرفي", back.Accounts[0].NameAR)
	assert.True(t, back.Receipts[0].TotalAmount.Equal(dec("105")))

	again, checksum2, err := EncodeSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, payload, again)
	assert.Equal(t, checksum, checksum2)
}

func TestVerifyChecksum_Tampered(t *testing.T) {
	payload, checksum, err := EncodeSnapshot(&Snapshot{Version: snapshotVersion})
	require.NoError(t, err)

	payload[len(payload)-2] ^= 0xff
	assert.ErrorIs(t, VerifyChecksum(payload, checksum), ErrChecksumMismatch)
}
