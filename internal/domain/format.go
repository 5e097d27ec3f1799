package domain

import "regexp"

var (
	countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	identifierPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)
)

// ValidCountryCode reports whether the value is shaped like an ISO-3166
// alpha-2 code. Existence of the country is covered by the referential check
// against the install-base snapshot, not here.
func ValidCountryCode(code string) bool {
	return countryCodePattern.MatchString(code)
}

// ValidIdentifier reports whether a user or title identifier matches the
// opaque-identifier contract of the upstream extraction layer.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}
