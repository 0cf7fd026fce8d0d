// Package geo resolves geographic codes from breakdown rows into display
// names. Lookups are read-only reference data initialized once at startup; on
// a miss the raw code doubles as the display name.
package geo

import (
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	once      sync.Once
	countries *gountries.Query
	titler    cases.Caser
)

func lookup() *gountries.Query {
	once.Do(func() {
		countries = gountries.New()
		titler = cases.Title(language.AmericanEnglish)
	})
	return countries
}

// Entry pairs a raw code with its resolved display name.
type Entry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CountryName resolves an ISO alpha-2/alpha-3 code. Unknown codes come back
// as themselves so a stale or bogus code never aborts a report.
func CountryName(code string) Entry {
	if code == "" {
		return Entry{Code: code, Name: "Unknown"}
	}
	country, err := lookup().FindCountryByAlpha(code)
	if err != nil {
		return Entry{Code: code, Name: code}
	}
	return Entry{Code: code, Name: country.Name.Common}
}

// PlaceName title-cases a free-form region or city label for display. Empty
// values render as Unknown like country misses do.
func PlaceName(name string) Entry {
	lookup()
	if name == "" {
		return Entry{Code: name, Name: "Unknown"}
	}
	return Entry{Code: name, Name: titler.String(name)}
}
