package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint { return &v }

func TestCanDownload(t *testing.T) {
	cases := []struct {
		name string
		item PurchaseItem
		want bool
	}{
		{"active unlimited", PurchaseItem{IsActive: true}, true},
		{"inactive unlimited", PurchaseItem{IsActive: false}, false},
		{"active under limit", PurchaseItem{IsActive: true, DownloadLimit: uintPtr(3), DownloadsUsed: 2}, true},
		{"active at limit", PurchaseItem{IsActive: true, DownloadLimit: uintPtr(3), DownloadsUsed: 3}, false},
		{"inactive under limit", PurchaseItem{IsActive: false, DownloadLimit: uintPtr(3), DownloadsUsed: 0}, false},
		{"zero limit", PurchaseItem{IsActive: true, DownloadLimit: uintPtr(0), DownloadsUsed: 0}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.item.CanDownload())
		})
	}
}

func TestDownloadLinkIsValid(t *testing.T) {
	now := time.Now()

	link := DownloadLink{ExpiresAt: now.Add(10 * time.Minute)}
	require.True(t, link.IsValid(now))
	require.True(t, link.IsValid(now.Add(10*time.Minute-time.Second)))
	require.False(t, link.IsValid(now.Add(10*time.Minute)))
	require.False(t, link.IsValid(now.Add(time.Hour)))
}
