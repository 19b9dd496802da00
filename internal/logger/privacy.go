package logger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinHashSaltLength is the shortest salt accepted from configuration.
const MinHashSaltLength = 32

var hashSalt string

// InitHashSalt sets the salt used for hashing identifiers in logs. An empty
// salt is replaced with a random one, so hashes are stable only for the
// lifetime of the process.
func InitHashSalt(salt string) error {
	if salt == "" {
		buf := make([]byte, MinHashSaltLength)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate hash salt: %w", err)
		}
		hashSalt = hex.EncodeToString(buf)
		return nil
	}

	if len(salt) < MinHashSaltLength {
		return fmt.Errorf("LOG_HASH_SALT must be at least %d characters", MinHashSaltLength)
	}

	hashSalt = salt
	return nil
}

// InitHashSaltForTesting sets the salt without validation.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

// HashUserID creates a privacy-preserving hash of a user ID.
// This allows tracking user actions without exposing actual user IDs.
func HashUserID(userID int64) string {
	return hashID(userID)
}

// HashChatID creates a privacy-preserving hash of a chat ID.
func HashChatID(chatID int64) string {
	return hashID(chatID)
}

func hashID(id int64) string {
	data := fmt.Sprintf("%d:%s", id, hashSalt)
	hash := sha256.Sum256([]byte(data))
	// First 8 characters for readability.
	return hex.EncodeToString(hash[:])[:8]
}

// SanitizeDescription redacts free text but preserves length information
// for debugging.
func SanitizeDescription(desc string) string {
	if desc == "" {
		return "<empty>"
	}

	return fmt.Sprintf("<redacted: %d words, %d chars>", len(strings.Fields(desc)), len(desc))
}

// SanitizeText is a general-purpose sanitizer for any user-provided text.
func SanitizeText(text string) string {
	if text == "" {
		return "<empty>"
	}

	n := utf8.RuneCountInString(text)
	if n <= 10 {
		return fmt.Sprintf("<%d chars>", n)
	}

	return fmt.Sprintf("%s...<%d chars>", string([]rune(text)[:3]), n)
}
