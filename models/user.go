package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

// User is a member of the social graph. The graph maps are not columns; the
// graph store fills them from the follower, circle and block tables.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:64;not null" json:"username"`
	Profile   map[string]any `gorm:"serializer:json;type:text" json:"profile,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Followers holds who follows this user, keyed by the follower's id.
	Followers map[uint]*Follower `gorm:"-" json:"followers,omitempty"`
	// Circles holds who this user placed in which circle, with display names.
	Circles map[string]map[uint]string `gorm:"-" json:"circles,omitempty"`
	Blocked map[uint]struct{}          `gorm:"-" json:"-"`
}

// Follower is the reverse side of a circle membership: a user who placed the
// owner in one or more of their circles.
type Follower struct {
	Name    string   `json:"name"`
	Circles []string `json:"circles"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// InitGraph allocates the graph maps so callers can write into them.
func (u *User) InitGraph() {
	if u.Followers == nil {
		u.Followers = map[uint]*Follower{}
	}
	if u.Circles == nil {
		u.Circles = map[string]map[uint]string{}
	}
	if u.Blocked == nil {
		u.Blocked = map[uint]struct{}{}
	}
}

// Ref returns the author snapshot stored on posts and comments.
func (u *User) Ref() AuthorRef {
	return AuthorRef{ID: u.ID, Name: u.Username}
}

// HasBlocked reports whether other is on the user's block list.
func (u *User) HasBlocked(other uint) bool {
	_, ok := u.Blocked[other]
	return ok
}

// CirclesOf returns the circles under which author placed this user. The
// lookup goes through this user's own followers map.
func (u *User) CirclesOf(author uint) []string {
	f, ok := u.Followers[author]
	if !ok {
		return nil
	}
	return f.Circles
}

// CircleNames returns the user's circle names in sorted order.
func (u *User) CircleNames() []string {
	names := make([]string, 0, len(u.Circles))
	for name := range u.Circles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCircle reports whether the follower entry lists circle.
func (f *Follower) HasCircle(circle string) bool {
	for _, c := range f.Circles {
		if c == circle {
			return true
		}
	}
	return false
}

// AddCircle adds circle to the entry, keeping the list sorted and unique.
func (f *Follower) AddCircle(circle string) {
	if f.HasCircle(circle) {
		return
	}
	f.Circles = append(f.Circles, circle)
	sort.Strings(f.Circles)
}

// RemoveCircle drops circle from the entry.
func (f *Follower) RemoveCircle(circle string) {
	kept := f.Circles[:0]
	for _, c := range f.Circles {
		if c != circle {
			kept = append(kept, c)
		}
	}
	f.Circles = kept
}
