package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/lorrc/accounts/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserInfo(t *testing.T) {
	info := domain.NewUserInfo("a@b.com", "A", "B")

	assert.Equal(t, domain.UserInfo{
		Email:     "a@b.com",
		FirstName: "A",
		LastName:  "B",
	}, info)
}

func TestUserInfoFromMap(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want domain.UserInfo
	}{
		{
			name: "nil map",
			data: nil,
			want: domain.UserInfo{},
		},
		{
			name: "complete",
			data: map[string]any{
				"email":     "a@b.com",
				"firstName": "A",
				"lastName":  "B",
				"address":   "1 Rail Road",
				"railcard":  "16-25",
				"photocard": "PC-1",
			},
			want: domain.UserInfo{
				Email:     "a@b.com",
				FirstName: "A",
				LastName:  "B",
				Address:   "1 Rail Road",
				Railcard:  "16-25",
				Photocard: "PC-1",
			},
		},
		{
			name: "partial",
			data: map[string]any{"email": "a@b.com", "railcard": "R"},
			want: domain.UserInfo{Email: "a@b.com", Railcard: "R"},
		},
		{
			name: "mistyped fields default to empty",
			data: map[string]any{
				"email":     42,
				"firstName": []string{"A"},
				"lastName":  nil,
				"address":   map[string]any{"line1": "x"},
				"railcard":  true,
				"photocard": "ok",
			},
			want: domain.UserInfo{Photocard: "ok"},
		},
		{
			name: "unknown keys ignored",
			data: map[string]any{"nickname": "z", "firstName": "A"},
			want: domain.UserInfo{FirstName: "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.UserInfoFromMap(tt.data))
		})
	}
}

func TestUserInfoFromValue(t *testing.T) {
	assert.Equal(t, domain.UserInfo{}, domain.UserInfoFromValue(nil))
	assert.Equal(t, domain.UserInfo{}, domain.UserInfoFromValue("not a map"))
	assert.Equal(t, domain.UserInfo{}, domain.UserInfoFromValue([]any{"a"}))
	assert.Equal(t,
		domain.UserInfo{Email: "a@b.com"},
		domain.UserInfoFromValue(map[string]string{"email": "a@b.com"}),
	)
}

func TestUserInfo_MapRoundTrip(t *testing.T) {
	info := domain.UserInfo{
		Email:     "a@b.com",
		FirstName: "A",
		LastName:  "B",
		Address:   "addr",
		Railcard:  "rc",
		Photocard: "pc",
	}

	m := info.Map()
	assert.Len(t, m, len(domain.UserInfoFieldNames))
	for _, key := range domain.UserInfoFieldNames {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, info, domain.UserInfoFromMap(m))
}

func TestUserInfo_OrderedFields(t *testing.T) {
	info := domain.NewUserInfo("a@b.com", "A", "B")

	fields := info.OrderedFields()
	assert.Equal(t, []string{"email", "firstName", "lastName", "address", "railcard", "photocard"}, fields.Keys())

	v, ok := fields.Get("lastName")
	assert.True(t, ok)
	assert.Equal(t, "B", v)

	_, ok = fields.Get("nickname")
	assert.False(t, ok)

	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.Equal(t,
		`{"email":"a@b.com","firstName":"A","lastName":"B","address":"","railcard":"","photocard":""}`,
		string(raw),
	)
}
