package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"greentoken/internal/domain"
)

// FingerprintVersion is embedded in every canonical fingerprint document.
// Changing the serialization requires a new version string.
const FingerprintVersion = "greentoken.fingerprint.v1"

var ecosystemTypes = map[string]struct{}{
	domain.EcosystemMangrove:  {},
	domain.EcosystemSeagrass:  {},
	domain.EcosystemSaltMarsh: {},
	domain.EcosystemKelp:      {},
}

// Fingerprint returns the lowercase hex SHA-256 of the canonical project
// document. It is the dataHash persisted with the project and referenced by
// approval attestations.
func Fingerprint(in domain.ProjectFingerprintInput) (string, error) {
	canonical, err := CanonicalFingerprint(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalFingerprint returns the exact bytes Fingerprint hashes.
func CanonicalFingerprint(in domain.ProjectFingerprintInput) ([]byte, error) {
	if err := ValidateFingerprintInput(in); err != nil {
		return nil, err
	}
	doc := map[string]any{
		"v":              FingerprintVersion,
		"name":           strings.TrimSpace(in.Name),
		"location":       strings.TrimSpace(in.Location),
		"coordinates":    []any{in.Latitude, in.Longitude},
		"areaHectares":   in.AreaHectares,
		"ecosystemType":  NormalizeEcosystemType(in.EcosystemType),
		"ownerId":        strings.TrimSpace(in.OwnerID),
		"documentHashes": sortedDocumentHashes(in.DocumentHashes),
	}
	return Marshal(doc)
}

func NormalizeEcosystemType(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ValidateFingerprintInput fails fast with *domain.ValidationError.
func ValidateFingerprintInput(in domain.ProjectFingerprintInput) error {
	for _, f := range [...]struct{ name, value string }{
		{"name", in.Name},
		{"location", in.Location},
		{"ownerId", in.OwnerID},
		{"ecosystemType", in.EcosystemType},
	} {
		if !utf8.ValidString(f.value) {
			return domain.NewValidationError(f.name, "must be valid UTF-8")
		}
	}
	if err := requireLength("name", in.Name, 3, 100); err != nil {
		return err
	}
	if err := requireLength("location", in.Location, 5, 200); err != nil {
		return err
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return domain.NewValidationError("ownerId", "is required")
	}
	if !finite(in.Latitude) || in.Latitude < -90 || in.Latitude > 90 {
		return domain.NewValidationError("latitude", "must be between -90 and 90")
	}
	if !finite(in.Longitude) || in.Longitude < -180 || in.Longitude > 180 {
		return domain.NewValidationError("longitude", "must be between -180 and 180")
	}
	if !finite(in.AreaHectares) || in.AreaHectares < 0.1 || in.AreaHectares > 10000 {
		return domain.NewValidationError("areaHectares", "must be between 0.1 and 10000")
	}
	eco := NormalizeEcosystemType(in.EcosystemType)
	if eco == "" {
		return domain.NewValidationError("ecosystemType", "is required")
	}
	if _, ok := ecosystemTypes[eco]; !ok {
		return domain.NewValidationError("ecosystemType", "must be one of MANGROVE, SEAGRASS, SALT_MARSH, KELP")
	}
	for _, h := range in.DocumentHashes {
		if !utf8.ValidString(h) {
			return domain.NewValidationError("documentHashes", "must be valid UTF-8")
		}
		if strings.TrimSpace(h) == "" {
			return domain.NewValidationError("documentHashes", "must not contain empty entries")
		}
	}
	return nil
}

func requireLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n == 0 {
		return domain.NewValidationError(field, "is required")
	}
	if n < min || n > max {
		return domain.NewValidationError(field, "length out of range")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// sortedDocumentHashes treats the input as a set: trimmed, sorted ascending,
// duplicates dropped.
func sortedDocumentHashes(in []string) []any {
	hashes := make([]string, 0, len(in))
	for _, h := range in {
		hashes = append(hashes, strings.TrimSpace(h))
	}
	sort.Strings(hashes)
	out := make([]any, 0, len(hashes))
	for i, h := range hashes {
		if i > 0 && h == hashes[i-1] {
			continue
		}
		out = append(out, h)
	}
	return out
}
