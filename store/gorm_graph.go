package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/circlefeed/models"
)

// Models lists every table the SQL stores need migrated.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.FollowerEntry{},
		&models.CircleMember{},
		&models.Block{},
		&models.Post{},
		&models.Comment{},
		&models.FanoutTask{},
	}
}

// GormGraph is a GraphStore on relational tables. Each direction of the graph
// lives in its own table so both lookups are single indexed reads.
type GormGraph struct {
	db *gorm.DB
}

func NewGormGraph(db *gorm.DB) *GormGraph {
	return &GormGraph{db: db}
}

func (g *GormGraph) GetUser(ctx context.Context, id uint) (*models.User, error) {
	db := g.db.WithContext(ctx)
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.InitGraph()

	var followers []models.FollowerEntry
	if err := db.Where("owner_id = ?", id).Find(&followers).Error; err != nil {
		return nil, err
	}
	for _, f := range followers {
		u.Followers[f.FollowerID] = &models.Follower{Name: f.DisplayName, Circles: f.Circles}
	}

	var members []models.CircleMember
	if err := db.Where("owner_id = ?", id).Find(&members).Error; err != nil {
		return nil, err
	}
	for _, m := range members {
		circle, ok := u.Circles[m.Circle]
		if !ok {
			circle = map[uint]string{}
			u.Circles[m.Circle] = circle
		}
		circle[m.MemberID] = m.DisplayName
	}

	var blocks []models.Block
	if err := db.Where("owner_id = ?", id).Find(&blocks).Error; err != nil {
		return nil, err
	}
	for _, b := range blocks {
		u.Blocked[b.BlockedID] = struct{}{}
	}
	return &u, nil
}

func (g *GormGraph) EnsureUser(ctx context.Context, id uint, name string) (*models.User, error) {
	u := models.User{ID: id, Username: name}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&u).Error; err != nil {
		return nil, err
	}
	return g.GetUser(ctx, id)
}

func (g *GormGraph) AddCircleMember(ctx context.Context, owner uint, circle string, member uint, memberName string) error {
	db := g.db.WithContext(ctx)
	if err := requireUser(db, owner); err != nil {
		return err
	}
	row := models.CircleMember{OwnerID: owner, Circle: circle, MemberID: member, DisplayName: memberName}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "circle"}, {Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&row).Error
}

func (g *GormGraph) RemoveCircleMember(ctx context.Context, owner uint, circle string, member uint) error {
	db := g.db.WithContext(ctx)
	if err := requireUser(db, owner); err != nil {
		return err
	}
	return db.Where("owner_id = ? AND circle = ? AND member_id = ?", owner, circle, member).
		Delete(&models.CircleMember{}).Error
}

func (g *GormGraph) AddFollowerCircle(ctx context.Context, owner, follower uint, followerName, circle string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUser(tx, owner); err != nil {
			return err
		}
		var entry models.FollowerEntry
		err := tx.Where("owner_id = ? AND follower_id = ?", owner, follower).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.FollowerEntry{OwnerID: owner, FollowerID: follower, DisplayName: followerName, Circles: []string{circle}}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}
		f := models.Follower{Name: followerName, Circles: entry.Circles}
		f.AddCircle(circle)
		entry.DisplayName = f.Name
		entry.Circles = f.Circles
		return tx.Save(&entry).Error
	})
}

func (g *GormGraph) RemoveFollowerCircle(ctx context.Context, owner, follower uint, circle string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUser(tx, owner); err != nil {
			return err
		}
		var entry models.FollowerEntry
		err := tx.Where("owner_id = ? AND follower_id = ?", owner, follower).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		f := models.Follower{Circles: entry.Circles}
		f.RemoveCircle(circle)
		if len(f.Circles) == 0 {
			return tx.Delete(&entry).Error
		}
		entry.Circles = f.Circles
		return tx.Save(&entry).Error
	})
}

func (g *GormGraph) Block(ctx context.Context, owner, blocked uint) error {
	db := g.db.WithContext(ctx)
	if err := requireUser(db, owner); err != nil {
		return err
	}
	row := models.Block{OwnerID: owner, BlockedID: blocked}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (g *GormGraph) Unblock(ctx context.Context, owner, blocked uint) error {
	db := g.db.WithContext(ctx)
	if err := requireUser(db, owner); err != nil {
		return err
	}
	return db.Where("owner_id = ? AND blocked_id = ?", owner, blocked).Delete(&models.Block{}).Error
}

func requireUser(db *gorm.DB, id uint) error {
	var n int64
	if err := db.Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
