package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEntity(t *testing.T) {
	cases := map[string]string{
		"Acme Wireless, Inc.":        "acme wireless",
		"ACME WIRELESS INC":          "acme wireless",
		"  Beta   Radio Corporation": "beta radio",
		"Gamma Co., Ltd.":            "gamma",
		"Inc":                        "inc",
		"":                           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEntity(in), in)
	}
}

func TestNormalizeIDs(t *testing.T) {
	got := NormalizeIDs([]string{" US2 ", "US1", "", "US2", "US3"})
	assert.Equal(t, []string{"US1", "US2", "US3"}, got)
	assert.Empty(t, NormalizeIDs(nil))
}

func TestSectorRef_IsZero(t *testing.T) {
	assert.True(t, SectorRef{}.IsZero())
	assert.False(t, SectorRef{Sector: "wireless-transmission"}.IsZero())
}
