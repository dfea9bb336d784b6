package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"gorm.io/datatypes"
)

// CalculateMD5 computes the MD5 hex digest of a byte slice. Used for
// upload dedup only, not for anything security-sensitive.
func CalculateMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ContentHash computes the sha256 hex digest of a string. Embedding cache
// keys are content-addressed through this.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// ConvertArrayToJSON marshals a string slice into a JSON column value,
// defaulting to an empty array on nil input or marshal failure.
func ConvertArrayToJSON(arr []string) datatypes.JSON {
	if len(arr) == 0 {
		return datatypes.JSON("[]")
	}
	jsonBytes, err := json.Marshal(arr)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(jsonBytes)
}

// ConvertMapToJSON marshals a map into a JSON column value, defaulting to
// an empty object on nil input or marshal failure.
func ConvertMapToJSON(m map[string]string) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(jsonBytes)
}
