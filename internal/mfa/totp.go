// Package mfa реализует TOTP (RFC 6238) и одноразовые резервные коды.
package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/mmeshcher/bankportal/internal/model"
	"github.com/mmeshcher/bankportal/internal/validation"
)

const (
	secretBytes = 20
	digits      = 6
	period      = 30
	qrSize      = 256
)

// Skew - допустимое расхождение часов в шагах по 30 секунд в обе стороны.
const Skew = 2

var (
	// ErrEmptySecret возвращается при попытке проверить код без секрета.
	ErrEmptySecret = errors.New("empty totp secret")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Secret - сгенерированный TOTP-секрет и ссылка для приложения-аутентификатора.
type Secret struct {
	Base32     string
	OTPAuthURL string
}

// Engine выпускает и проверяет TOTP-коды.
type Engine struct {
	issuer string
	now    func() time.Time
}

// NewEngine создаёт Engine с указанным издателем, который отображается в приложении-аутентификаторе.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer, now: time.Now}
}

// GenerateSecret создаёт 160-битный секрет для пользователя.
func (e *Engine) GenerateSecret(username string) (Secret, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return Secret{}, fmt.Errorf("read random: %w", err)
	}

	enc := b32.EncodeToString(raw)
	return Secret{
		Base32:     enc,
		OTPAuthURL: e.provisionURI(enc, username),
	}, nil
}

func (e *Engine) provisionURI(secret, account string) string {
	label := url.PathEscape(e.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", e.issuer)
	v.Set("period", strconv.Itoa(period))
	v.Set("digits", strconv.Itoa(digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// QRCode отрисовывает otpauth-ссылку в PNG и возвращает её как data URL.
func (e *Engine) QRCode(otpauthURL string) (string, error) {
	png, err := qrcode.Encode(otpauthURL, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// VerifyToken сверяет шестизначный код с секретом в окне ±Skew шагов от текущего времени.
func (e *Engine) VerifyToken(code, secret string) bool {
	ok, err := verifyAt(code, secret, e.now())
	return err == nil && ok
}

// IsSetupComplete сообщает, завершена ли настройка MFA у пользователя.
func IsSetupComplete(u *model.User) bool {
	return u != nil && u.MFAActive()
}

func verifyAt(code, secret string, now time.Time) (bool, error) {
	if !validation.IsValidTOTPCode(code) {
		return false, nil
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}

	base := now.Unix() / period
	matched := false
	for step := int64(-Skew); step <= Skew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotp(key, counter)), []byte(code)) == 1 {
			matched = true
		}
	}
	return matched, nil
}

// CodeAt вычисляет код для секрета в момент t.
func CodeAt(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, t.Unix()/period), nil
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, ErrEmptySecret
	}
	key, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	return key, nil
}

func hotp(key []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	return fmt.Sprintf("%0*d", digits, bin%1000000)
}
