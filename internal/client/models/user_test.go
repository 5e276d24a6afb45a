package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProfileUpdate_Metadata(t *testing.T) {
	name := "Ann"
	avatar := "https://cdn.example.com/a.png"

	require.True(t, ProfileUpdate{}.IsEmpty())
	require.Empty(t, ProfileUpdate{}.Metadata())

	require.Equal(t, map[string]any{MetaFullName: "Ann"}, ProfileUpdate{FullName: &name}.Metadata())
	require.Equal(t, map[string]any{
		MetaFullName:  "Ann",
		MetaAvatarURL: avatar,
	}, ProfileUpdate{FullName: &name, AvatarURL: &avatar}.Metadata())
}

func TestUser_JSONFieldNames(t *testing.T) {
	u := User{
		ID:        "u-1",
		Email:     "ann@example.com",
		Name:      "Ann",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(u)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"u-1","email":"ann@example.com","name":"Ann","createdAt":"2024-01-02T03:04:05Z"}`, string(data))
}
