package tfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/saypex/auth-service/internal/config"
)

const totpSecretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTP implements RFC 6238 time-based one-time passwords over
// HMAC-SHA1, the algorithm every mainstream authenticator app expects.
type TOTP struct {
	issuer string
	period int
	digits int
	skew   int
}

func NewTOTP(cfg *config.TFAConfig) *TOTP {
	t := &TOTP{
		issuer: cfg.Issuer,
		period: cfg.Period,
		digits: cfg.Digits,
		skew:   cfg.Skew,
	}
	if t.issuer == "" {
		t.issuer = "SAYPEX"
	}
	if t.period <= 0 {
		t.period = 30
	}
	if t.digits <= 0 {
		t.digits = 6
	}
	if t.skew <= 0 {
		t.skew = 1
	}
	return t
}

// GenerateSecret returns a fresh random secret, base32-encoded without
// padding for manual entry into authenticator apps.
func (t *TOTP) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URL encoded into the QR code.
func (t *TOTP) ProvisioningURI(secret, account string) string {
	label := url.PathEscape(t.issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", t.issuer)
	v.Set("period", strconv.Itoa(t.period))
	v.Set("digits", strconv.Itoa(t.digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the secret at the current time window,
// allowing skew windows of drift on either side.
func (t *TOTP) Verify(secret, code string, now time.Time) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != t.digits || !isNumericString(trimmed) {
		return false
	}

	key, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil || len(key) == 0 {
		return false
	}

	baseCounter := now.Unix() / int64(t.period)
	for step := -t.skew; step <= t.skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(key, uint64(counter), t.digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true
		}
	}

	return false
}

// CodeAt returns the expected code for the window containing now.
func (t *TOTP) CodeAt(secret string, now time.Time) (string, error) {
	key, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", err
	}
	if len(key) == 0 {
		return "", errors.New("empty totp secret")
	}
	return hotpCode(key, uint64(now.Unix()/int64(t.period)), t.digits), nil
}

func hotpCode(key []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
