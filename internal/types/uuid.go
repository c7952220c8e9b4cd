package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix, e.g. obl_01HV3K6Z2X0R8Q5N4M7P9T1W2Y
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_OBLIGATION = "obl"
	UUID_PREFIX_ALERT_RULE = "arule"
	UUID_PREFIX_RECEIPT    = "rcpt"
)
