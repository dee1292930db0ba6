// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func boolLabel(b bool) string { return strconv.FormatBool(b) }
