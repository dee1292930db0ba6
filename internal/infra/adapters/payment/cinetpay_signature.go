package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// cinetPaySignedFields is the concatenation order CinetPay uses for the x-token HMAC.
var cinetPaySignedFields = []string{
	"cpm_site_id", "cpm_trans_id", "cpm_trans_date", "cpm_amount", "cpm_currency",
	"signature", "payment_method", "cel_phone_num", "cpm_phone_prefixe", "cpm_language",
	"cpm_version", "cpm_payment_config", "cpm_page_action", "cpm_custom", "cpm_designation",
	"cpm_error_message",
}

// CinetPaySignature computes the hex HMAC-SHA256 over the notification fields.
func CinetPaySignature(secret string, data map[string]string) string {
	var b strings.Builder
	for _, k := range cinetPaySignedFields {
		b.WriteString(data[k])
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyCinetPaySignature(secret string, data map[string]string, token string) bool {
	expected := CinetPaySignature(secret, data)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(token))))
}
