package models

import "time"

// FollowerEntry stores one row of a user's followers map: FollowerID placed
// OwnerID in the listed circles.
type FollowerEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"uniqueIndex:idx_follower_owner_follower;not null" json:"owner_id"`
	FollowerID  uint      `gorm:"uniqueIndex:idx_follower_owner_follower;not null" json:"follower_id"`
	DisplayName string    `gorm:"size:64" json:"display_name"`
	Circles     []string  `gorm:"serializer:json;type:text" json:"circles"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CircleMember stores one row of a user's circles map.
type CircleMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     uint      `gorm:"uniqueIndex:idx_circle_owner_name_member;not null" json:"owner_id"`
	Circle      string    `gorm:"uniqueIndex:idx_circle_owner_name_member;size:64;not null" json:"circle"`
	MemberID    uint      `gorm:"uniqueIndex:idx_circle_owner_name_member;not null" json:"member_id"`
	DisplayName string    `gorm:"size:64" json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Block records that OwnerID blocked BlockedID.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"uniqueIndex:idx_block_owner_blocked;not null" json:"owner_id"`
	BlockedID uint      `gorm:"uniqueIndex:idx_block_owner_blocked;not null" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}
