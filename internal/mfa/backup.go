package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mmeshcher/bankportal/internal/validation"
)

// BackupCodeCount - число резервных кодов, выдаваемых при включении MFA.
const BackupCodeCount = 8

// BackupCodeResult - итог проверки резервного кода.
type BackupCodeResult struct {
	Valid     bool
	Remaining []string
	UsedHash  string
}

// GenerateBackupCodes создаёт count кодов по 8 шестнадцатеричных символов в верхнем регистре.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = BackupCodeCount
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("read random: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(raw))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode приводит введённый код к каноническому виду.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashBackupCode возвращает SHA-256 нормализованного кода. В хранилище попадают только хеши.
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(NormalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes хеширует набор кодов.
func HashBackupCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, HashBackupCode(c))
	}
	return out
}

// VerifyBackupCode ищет код среди сохранённых хешей и возвращает набор без него.
// Сохранение уменьшенного набора остаётся за вызывающим кодом.
func VerifyBackupCode(code string, known []string) BackupCodeResult {
	normalized := NormalizeBackupCode(code)
	if !validation.IsValidBackupCode(normalized) {
		return BackupCodeResult{Remaining: known}
	}

	h := HashBackupCode(normalized)
	for i, k := range known {
		if subtle.ConstantTimeCompare([]byte(h), []byte(k)) == 1 {
			remaining := make([]string, 0, len(known)-1)
			remaining = append(remaining, known[:i]...)
			remaining = append(remaining, known[i+1:]...)
			return BackupCodeResult{Valid: true, Remaining: remaining, UsedHash: k}
		}
	}
	return BackupCodeResult{Remaining: known}
}
