package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// correlation is the record round-tripped through the gateway as extraData.
type correlation struct {
	MemberID  uuid.UUID `json:"memberId"`
	PackageID uuid.UUID `json:"packageId"`
}

// EncodeCorrelation packs the member and package into an opaque ASCII blob.
func EncodeCorrelation(memberID, packageID uuid.UUID) string {
	// marshalling two UUIDs cannot fail
	raw, _ := json.Marshal(correlation{MemberID: memberID, PackageID: packageID})
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeCorrelation recovers the member and package from a blob produced by
// EncodeCorrelation. Every failure wraps ErrInvalidCorrelation.
func DecodeCorrelation(blob string) (memberID, packageID uuid.UUID, err error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: empty", ErrInvalidCorrelation)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCorrelation, err)
	}

	var c correlation
	if err := json.Unmarshal(raw, &c); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCorrelation, err)
	}
	if c.MemberID == uuid.Nil || c.PackageID == uuid.Nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: missing member or package", ErrInvalidCorrelation)
	}

	return c.MemberID, c.PackageID, nil
}
