// Package sites holds the read-only site and goal registry the query engine
// resolves requests against.
package sites

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"statlens/internal/query"
)

// SiteNotFoundError is returned when no site matches a requested domain.
type SiteNotFoundError struct {
	Domain string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("site not found for domain: %s", e.Domain)
}

// NewSiteNotFoundError creates a new SiteNotFoundError.
func NewSiteNotFoundError(domain string) *SiteNotFoundError {
	return &SiteNotFoundError{Domain: domain}
}

// Site represents a tracked site. Timezone is an IANA name; all of the site's
// date arithmetic happens in that zone.
type Site struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Domain         string     `gorm:"unique;not null" json:"domain"`
	Timezone       string     `gorm:"not null;default:'UTC'" json:"timezone"`
	StatsStartDate *time.Time `json:"stats_start_date"` // earliest recorded event date
	ImportedStart  *time.Time `json:"imported_start"`
	ImportedEnd    *time.Time `json:"imported_end"`
	ImportStatus   string     `json:"import_status"` // "", "importing", "ok", "failed"
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Goal is a conversion target: either a custom event by name or a pageview of
// a specific path. Exactly one of EventName/PagePath is set.
type Goal struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID    uint      `gorm:"index;not null" json:"site_id"`
	EventName string    `json:"event_name"`
	PagePath  string    `json:"page_path"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName is the user-facing goal label: page goals render as
// "Visit <path>", event goals as the event name.
func (g Goal) DisplayName() string {
	if g.PagePath != "" {
		return "Visit " + g.PagePath
	}
	return g.EventName
}

// GetSiteByDomain retrieves a site by exact domain match.
func GetSiteByDomain(db *gorm.DB, domain string) (*Site, error) {
	var site Site
	if err := db.Where("domain = ?", domain).First(&site).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewSiteNotFoundError(domain)
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// GoalsForSite lists the site's configured goals.
func GoalsForSite(db *gorm.DB, siteID uint) ([]Goal, error) {
	var goals []Goal
	if err := db.Where("site_id = ?", siteID).Order("id").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("error querying goals: %w", err)
	}
	return goals, nil
}

// GoalDisplayNames maps raw goal identifiers (event names or "Visit <path>")
// to display labels for the site's configured goals.
func GoalDisplayNames(db *gorm.DB, siteID uint) (map[string]string, error) {
	goals, err := GoalsForSite(db, siteID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(goals))
	for _, g := range goals {
		if g.PagePath != "" {
			names[g.PagePath] = g.DisplayName()
		} else {
			names[g.EventName] = g.DisplayName()
		}
	}
	return names, nil
}

// QueryContext converts the registry record into the reference data query
// construction consumes. An unloadable timezone falls back to UTC rather than
// failing the request.
func (s *Site) QueryContext() query.SiteContext {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}

	ctx := query.SiteContext{Timezone: loc}
	if s.StatsStartDate != nil {
		ctx.StatsStart = *s.StatsStartDate
	}
	if s.ImportedStart != nil && s.ImportedEnd != nil {
		ctx.Import = query.ImportWindow{
			Start:  *s.ImportedStart,
			End:    *s.ImportedEnd,
			Status: s.ImportStatus,
		}
	}
	return ctx
}

// StoreSite returns the identifier pair store calls are keyed by.
func (s *Site) StoreSite() (int64, string) {
	return int64(s.ID), s.Domain
}
