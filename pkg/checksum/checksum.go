package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HashType represents different hash algorithms
type HashType string

const (
	HashTypeMD5    HashType = "md5"
	HashTypeSHA1   HashType = "sha1"
	HashTypeSHA256 HashType = "sha256"
	HashTypeSHA384 HashType = "sha384"
	HashTypeSHA512 HashType = "sha512"
)

// MismatchError is returned when a file does not hash to the expected value
type MismatchError struct {
	File     string
	HashType HashType
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s:%s, got %s:%s",
		e.File, e.HashType, e.Expected, e.HashType, e.Actual)
}

// DetectHashType detects the hash type from an explicit prefix or the hex length
func DetectHashType(checksum string) HashType {
	checksum = strings.TrimSpace(checksum)
	if prefix, _, ok := strings.Cut(checksum, ":"); ok {
		switch t := HashType(strings.ToLower(strings.TrimSpace(prefix))); t {
		case HashTypeMD5, HashTypeSHA1, HashTypeSHA256, HashTypeSHA384, HashTypeSHA512:
			return t
		}
	}
	if idx := strings.Index(checksum, ":"); idx >= 0 {
		checksum = strings.TrimSpace(checksum[idx+1:])
	}

	switch len(checksum) {
	case 32:
		return HashTypeMD5
	case 40:
		return HashTypeSHA1
	case 96:
		return HashTypeSHA384
	case 128:
		return HashTypeSHA512
	default:
		return HashTypeSHA256
	}
}

// CreateHasher creates the appropriate hash.Hash for the given type
func CreateHasher(hashType HashType) (hash.Hash, error) {
	switch hashType {
	case HashTypeMD5:
		return md5.New(), nil
	case HashTypeSHA1:
		return sha1.New(), nil
	case HashTypeSHA256:
		return sha256.New(), nil
	case HashTypeSHA384:
		return sha512.New384(), nil
	case HashTypeSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash type: %s", hashType)
	}
}

// ParseChecksum splits "type:value" or a bare hex value into its parts
func ParseChecksum(checksum string) (value string, hashType HashType) {
	checksum = strings.TrimSpace(checksum)
	hashType = DetectHashType(checksum)
	if _, v, ok := strings.Cut(checksum, ":"); ok {
		return strings.TrimSpace(v), hashType
	}
	return checksum, hashType
}

// FormatChecksum formats a checksum with its type prefix
func FormatChecksum(value string, hashType HashType) string {
	return fmt.Sprintf("%s:%s", hashType, value)
}

// IsValid reports whether a checksum has a known prefix (if any) and a hex value of a known length
func IsValid(checksum string) bool {
	checksum = strings.TrimSpace(checksum)
	if prefix, _, ok := strings.Cut(checksum, ":"); ok {
		switch HashType(strings.ToLower(prefix)) {
		case HashTypeMD5, HashTypeSHA1, HashTypeSHA256, HashTypeSHA384, HashTypeSHA512:
		default:
			return false
		}
	}
	value, _ := ParseChecksum(checksum)
	if !isHexString(value) {
		return false
	}
	switch len(value) {
	case 32, 40, 64, 96, 128:
		return true
	}
	return false
}

func isHexString(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return len(s) > 0
}

// CalculateFileChecksum returns the lowercase hex digest of a file
func CalculateFileChecksum(filePath string, hashType HashType) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer func() { _ = file.Close() }()

	hasher, err := CreateHasher(hashType)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// VerifyChecksum verifies a file against a checksum
func VerifyChecksum(filePath, expectedChecksum string) error {
	if !IsValid(expectedChecksum) {
		return fmt.Errorf("invalid checksum %q", expectedChecksum)
	}
	expected, hashType := ParseChecksum(expectedChecksum)

	actual, err := CalculateFileChecksum(filePath, hashType)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	if !strings.EqualFold(actual, expected) {
		return &MismatchError{File: filepath.Base(filePath), HashType: hashType, Expected: expected, Actual: actual}
	}
	return nil
}
