package points_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synetech/synepoints/points"
)

func TestPrize_PriceAmount(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		want   int64
		wantOK bool
	}{
		{"plain integer", "50", 50, true},
		{"zero", "0", 0, true},
		{"negotiated sentinel", "dle domluvy", 0, false},
		{"empty", "", 0, false},
		{"fractional", "12.5", 0, false},
		{"negative", "-3", 0, false},
		{"integer with decimal point", "120.00", 120, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := points.Prize{Price: tt.price}.PriceAmount()
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPrize_Purchasable(t *testing.T) {
	assert.True(t, points.Prize{Price: "50", Requestable: true}.Purchasable())
	assert.False(t, points.Prize{Price: "50", Requestable: false}.Purchasable())
	assert.False(t, points.Prize{Price: "dle domluvy", Requestable: true}.Purchasable())
}

func TestRole_Permissions(t *testing.T) {
	assert.True(t, points.RoleAdmin.CanAward())
	assert.True(t, points.RolePM.CanAward())
	assert.False(t, points.RoleUser.CanAward())

	assert.True(t, points.RoleAdmin.CanGrant())
	assert.False(t, points.RolePM.CanGrant())
	assert.False(t, points.RoleUser.CanGrant())
}

func TestParseRole(t *testing.T) {
	r, ok := points.ParseRole("pm")
	assert.True(t, ok)
	assert.Equal(t, points.RolePM, r)

	_, ok = points.ParseRole("superuser")
	assert.False(t, ok)
}
