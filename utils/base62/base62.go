package base62

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jxskiss/base62"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

var (
	ErrEmptyTenantID           = errors.New("empty tenant ID")
	ErrDecodingSchemaName      = errors.New("error decoding schema name")
	ErrEncodedSchemaNameLength = errors.New("encoded schema name has invalid length")
)

const (
	SchemaNamePrefix = "_"

	minEncodedLength = 3
	maxEncodedLength = 62
)

// EncodeSchemaName derives the postgres-safe schema handle stored with a
// tenant record. Postgres limits identifiers to 63 bytes, the prefix takes one.
func EncodeSchemaName(tenantID string) (string, error) {
	if tenantID == "" {
		return "", ErrEmptyTenantID
	}

	encoded := base62.EncodeToString([]byte(tenantID))
	if len(encoded) < minEncodedLength || len(encoded) > maxEncodedLength {
		return "", fmt.Errorf("%w got %d", ErrEncodedSchemaNameLength, len(encoded))
	}

	return SchemaNamePrefix + encoded, nil
}

func DecodeSchemaName(encoded string) (string, error) {
	decoded, err := base62.DecodeString(strings.TrimPrefix(encoded, SchemaNamePrefix))
	if err != nil {
		return "", errs.Wrap(ErrDecodingSchemaName, err)
	}

	return string(decoded), nil
}
