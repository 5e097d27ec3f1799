// Package estimator implements the stratified-sampling MAU estimation
// pipeline: collection, stratification, scaling, and interval estimation.
package estimator

import (
	"sort"

	"example.com/mau/internal/domain"
)

// SampleCounts holds the distinct-user tallies derived from one activity
// snapshot. All downstream stages read from it instead of re-walking the raw
// records.
type SampleCounts struct {
	// CountryDistinct counts distinct users with at least one non-offline
	// activity record, keyed by country.
	CountryDistinct map[string]int
	// GenreDistinct counts distinct users per (country, genre). A user
	// active in several genres appears in each.
	GenreDistinct map[string]map[string]int
	// TitleDistinct counts distinct users per (country, title).
	TitleDistinct map[string]map[string]int
	// UnknownUsers and UnknownTitles count activity rows that referenced an
	// identifier missing from the user or title snapshot. They are skipped
	// here and surface later through the referential picture of the run.
	UnknownUsers  int
	UnknownTitles int
}

// CollectCounts walks the activity snapshot once and tallies distinct users
// per country, per (country, genre), and per (country, title). Offline
// sentinel rows are excluded from every tally.
func CollectCounts(snap *domain.Snapshot) *SampleCounts {
	counts := &SampleCounts{
		CountryDistinct: make(map[string]int),
		GenreDistinct:   make(map[string]map[string]int),
		TitleDistinct:   make(map[string]map[string]int),
	}

	type genreKey struct{ country, genre, user string }
	type titleKey struct{ country, title, user string }
	type countryKey struct{ country, user string }

	seenCountry := make(map[countryKey]struct{})
	seenGenre := make(map[genreKey]struct{})
	seenTitle := make(map[titleKey]struct{})

	for _, rec := range snap.Activity {
		if rec.Offline() {
			continue
		}
		user, ok := snap.Users[rec.UserID]
		if !ok {
			counts.UnknownUsers++
			continue
		}
		title, ok := snap.Titles[rec.TitleID]
		if !ok {
			counts.UnknownTitles++
			continue
		}

		country := user.CountryCode

		ck := countryKey{country, rec.UserID}
		if _, dup := seenCountry[ck]; !dup {
			seenCountry[ck] = struct{}{}
			counts.CountryDistinct[country]++
		}

		gk := genreKey{country, title.Genre, rec.UserID}
		if _, dup := seenGenre[gk]; !dup {
			seenGenre[gk] = struct{}{}
			if counts.GenreDistinct[country] == nil {
				counts.GenreDistinct[country] = make(map[string]int)
			}
			counts.GenreDistinct[country][title.Genre]++
		}

		tk := titleKey{country, rec.TitleID, rec.UserID}
		if _, dup := seenTitle[tk]; !dup {
			seenTitle[tk] = struct{}{}
			if counts.TitleDistinct[country] == nil {
				counts.TitleDistinct[country] = make(map[string]int)
			}
			counts.TitleDistinct[country][rec.TitleID]++
		}
	}

	return counts
}

// Countries returns every country with observed activity, sorted for
// deterministic iteration.
func (c *SampleCounts) Countries() []string {
	out := make([]string, 0, len(c.CountryDistinct))
	for country := range c.CountryDistinct {
		out = append(out, country)
	}
	sort.Strings(out)
	return out
}
