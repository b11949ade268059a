package database

import "time"

// Activity actions as stored in activity_log.action.
const (
	ActionDownload   = "down"
	ActionView       = "view"
	ActionLogin      = "login" // legacy rows; counted with user_login
	ActionUserLogin  = "user_login"
	ActionAdminLogin = "admin_login"
	ActionLogout     = "logout"
	ActionShareDown  = "share_down"
)

// Keys of archived_stats rows.
const (
	StatTotalDownloads = "total_downloads"
	StatTotalViews     = "total_views"
	StatTotalLogins    = "total_logins"
)

// ShareLink maps a public slug to a file under the managed root.
type ShareLink struct {
	ID            int64
	FilePath      string
	Slug          string
	ExpireAt      *time.Time // nil when the link never expires
	CreatedAt     time.Time
	DownloadCount int64
}

// IsExpired reports whether the link has an expiry that lies before now.
func (s *ShareLink) IsExpired(now time.Time) bool {
	return s.ExpireAt != nil && s.ExpireAt.Before(now)
}

// ActivityEntry is one row of the activity log.
type ActivityEntry struct {
	ID        int64
	Subject   string
	IP        string
	Location  string
	Device    string
	Action    string
	CreatedAt time.Time
}

// Totals holds per-action counts. Used both for live counts and archived sums.
type Totals struct {
	Downloads int64 `json:"total_downloads"`
	Views     int64 `json:"total_views"`
	Logins    int64 `json:"total_logins"`
}

// Add returns the element-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Downloads: t.Downloads + o.Downloads,
		Views:     t.Views + o.Views,
		Logins:    t.Logins + o.Logins,
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
