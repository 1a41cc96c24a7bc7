package constants

import "strings"

// EntityType labels a named, typed value found in contract text.
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityOrg    EntityType = "ORG"
	EntityDate   EntityType = "DATE"
	EntityMoney  EntityType = "MONEY"
	EntityEmail  EntityType = "EMAIL"
	EntityPhone  EntityType = "PHONE"
	EntityID     EntityType = "ID"
)

var allEntityTypes = []EntityType{
	EntityPerson,
	EntityOrg,
	EntityDate,
	EntityMoney,
	EntityEmail,
	EntityPhone,
	EntityID,
}

// DefaultRedactionTypes are the PII types masked when no allow-list is
// configured. ORG, DATE, and MONEY are deliberately excluded.
var DefaultRedactionTypes = []EntityType{
	EntityPerson,
	EntityEmail,
	EntityPhone,
	EntityID,
}

// EntityTypeStrings returns the entity types as plain strings, for schema enums.
func EntityTypeStrings() []string {
	result := make([]string, len(allEntityTypes))
	for i, et := range allEntityTypes {
		result[i] = string(et)
	}
	return result
}

// CanonicalizeEntityType maps free-form model output ("person", "organization")
// onto a known entity type.
func CanonicalizeEntityType(input string) (EntityType, bool) {
	if input == "" {
		return "", false
	}

	normalized := strings.ToUpper(strings.TrimSpace(input))

	synonyms := map[string]EntityType{
		"NAME":         EntityPerson,
		"ORGANIZATION": EntityOrg,
		"ORGANISATION": EntityOrg,
		"COMPANY":      EntityOrg,
		"AMOUNT":       EntityMoney,
		"CURRENCY":     EntityMoney,
		"E-MAIL":       EntityEmail,
		"TELEPHONE":    EntityPhone,
		"IDENTIFIER":   EntityID,
		"SSN":          EntityID,
	}

	if et, ok := synonyms[normalized]; ok {
		return et, true
	}

	for _, et := range allEntityTypes {
		if normalized == string(et) {
			return et, true
		}
	}

	return "", false
}
