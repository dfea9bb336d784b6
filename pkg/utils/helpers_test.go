package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateMD5(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", CalculateMD5(nil))
	assert.Equal(t, CalculateMD5([]byte("abc")), CalculateMD5([]byte("abc")))
	assert.NotEqual(t, CalculateMD5([]byte("abc")), CalculateMD5([]byte("abd")))
}

func TestContentHash(t *testing.T) {
	// sha256 of the empty string.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
	assert.Len(t, ContentHash("qualquer texto"), 64)
}

func TestConvertMapToJSON(t *testing.T) {
	data := ConvertMapToJSON(map[string]string{"email": "ana@example.com"})
	assert.JSONEq(t, `{"email":"ana@example.com"}`, string(data))

	assert.JSONEq(t, `{}`, string(ConvertMapToJSON(nil)))
}

func TestConvertArrayToJSON(t *testing.T) {
	data := ConvertArrayToJSON([]string{"skills", "experience"})
	assert.JSONEq(t, `["skills","experience"]`, string(data))

	assert.JSONEq(t, `[]`, string(ConvertArrayToJSON(nil)))
}
