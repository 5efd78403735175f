// internal/app/builder/country.go
package builder

import (
	"strings"
)

// countryNames maps upper-cased names and common abbreviations to ISO 3166-1 alpha-2.
var countryNames = map[string]string{
	"UNITED STATES":            "US",
	"UNITED STATES OF AMERICA": "US",
	"USA":                      "US",
	"U.S.":                     "US",
	"U.S.A.":                   "US",
	"AMERICA":                  "US",
	"CANADA":                   "CA",
	"MEXICO":                   "MX",
	"UNITED KINGDOM":           "GB",
	"GREAT BRITAIN":            "GB",
	"UK":                       "GB",
	"ENGLAND":                  "GB",
	"IRELAND":                  "IE",
	"GERMANY":                  "DE",
	"FRANCE":                   "FR",
	"SPAIN":                    "ES",
	"ITALY":                    "IT",
	"PORTUGAL":                 "PT",
	"NETHERLANDS":              "NL",
	"SWITZERLAND":              "CH",
	"SWEDEN":                   "SE",
	"NORWAY":                   "NO",
	"ISRAEL":                   "IL",
	"CHINA":                    "CN",
	"HONG KONG":                "HK",
	"TAIWAN":                   "TW",
	"JAPAN":                    "JP",
	"SOUTH KOREA":              "KR",
	"KOREA":                    "KR",
	"INDIA":                    "IN",
	"SINGAPORE":                "SG",
	"PHILIPPINES":              "PH",
	"VIETNAM":                  "VN",
	"AUSTRALIA":                "AU",
	"NEW ZEALAND":              "NZ",
	"BRAZIL":                   "BR",
	"ARGENTINA":                "AR",
	"COLOMBIA":                 "CO",
	"VENEZUELA":                "VE",
	"CHILE":                    "CL",
	"PERU":                     "PE",
	"DOMINICAN REPUBLIC":       "DO",
	"PUERTO RICO":              "PR",
	"RUSSIA":                   "RU",
	"UKRAINE":                  "UA",
	"TURKEY":                   "TR",
	"UNITED ARAB EMIRATES":     "AE",
	"UAE":                      "AE",
	"SAUDI ARABIA":             "SA",
	"NIGERIA":                  "NG",
	"SOUTH AFRICA":             "ZA",
	"CAYMAN ISLANDS":           "KY",
	"BRITISH VIRGIN ISLANDS":   "VG",
	"BAHAMAS":                  "BS",
	"PANAMA":                   "PA",
}

var countryCodes = func() map[string]bool {
	m := make(map[string]bool, len(countryNames))
	for _, code := range countryNames {
		m[code] = true
	}
	return m
}()

// CountryCode resolves a free-text country to its ISO2 code.
func CountryCode(v string) (string, bool) {
	key := strings.ToUpper(strings.Join(strings.Fields(v), " "))
	if code, ok := countryNames[key]; ok {
		return code, true
	}
	if len(key) == 2 && countryCodes[key] {
		return key, true
	}
	return "", false
}
