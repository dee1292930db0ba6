package payment

import (
	"strconv"
	"strings"

	"paygate/internal/infra/i18n"
)

// SamaErrorCodes lists the documented pay endpoint failure codes. Each has a
// sama.error.<code> translation.
var SamaErrorCodes = []int{
	1001, 1002, 1003, 1004, 1005,
	1006, 1007, 1008, 1009, 1010,
	1011, 1012, 1013, 1014, 1015,
}

const (
	samaCodeExpiredToken        = 1004
	samaCodeUnknownNumber       = 1006
	samaCodeInsufficientBalance = 1013
)

var samaMessageHints = []struct {
	code    int
	needles []string
}{
	{samaCodeInsufficientBalance, []string{"insufficient", "insuffisant", "solde"}},
	{samaCodeUnknownNumber, []string{"unknown number", "numero inconnu", "numéro inconnu", "not registered", "introuvable"}},
	{samaCodeExpiredToken, []string{"expired", "expiré", "expire"}},
}

// SamaErrorMessage maps a SAMA status code and free-text message to a localized
// user message. Known phrases in text take precedence over the code; unknown codes
// fall back to the generic message.
func SamaErrorMessage(tr *i18n.Translator, code int, text string) string {
	lower := strings.ToLower(text)
	for _, h := range samaMessageHints {
		for _, n := range h.needles {
			if strings.Contains(lower, n) {
				return tr.T(samaKey(h.code))
			}
		}
	}
	if key := samaKey(code); tr.Has(key) {
		return tr.T(key)
	}
	return tr.T("sama.error.generic", strconv.Itoa(code))
}

func samaKey(code int) string { return "sama.error." + strconv.Itoa(code) }
