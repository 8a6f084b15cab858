package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLevel_Entails(t *testing.T) {
	tests := []struct {
		held      Level
		requested Level
		want      bool
	}{
		{LevelDelete, LevelRead, true},
		{LevelDelete, LevelWrite, true},
		{LevelDelete, LevelDelete, true},
		{LevelWrite, LevelRead, true},
		{LevelWrite, LevelWrite, true},
		{LevelWrite, LevelDelete, false},
		{LevelRead, LevelRead, true},
		{LevelRead, LevelWrite, false},
		{LevelNone, LevelRead, false},
		{LevelDelete, LevelNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.held.String()+">="+tt.requested.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.held.Entails(tt.requested))
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel(" write ")
	require.NoError(t, err)
	assert.Equal(t, LevelWrite, l)

	_, err = ParseLevel("ADMIN")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestMaxLevel(t *testing.T) {
	assert.Equal(t, LevelDelete, MaxLevel(LevelRead, LevelDelete))
	assert.Equal(t, LevelWrite, MaxLevel(LevelWrite, LevelNone))
}

func TestLevel_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Level Level `json:"level"`
	}{LevelDelete})
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"DELETE"}`, string(data))

	var decoded struct {
		Level Level `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"read"}`), &decoded))
	assert.Equal(t, LevelRead, decoded.Level)

	err = json.Unmarshal([]byte(`{"level":"OWNER"}`), &decoded)
	assert.Error(t, err)
}

func TestLevel_YAML(t *testing.T) {
	var decoded struct {
		Level Level `yaml:"level"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("level: WRITE\n"), &decoded))
	assert.Equal(t, LevelWrite, decoded.Level)
}
