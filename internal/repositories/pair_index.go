package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PairIndex maps an unordered user pair to its private room id. It is an
// optional secondary index: with it, concurrent CreateOrGetPrivateRoom calls
// for one pair agree on a single room instead of racing.
type PairIndex interface {
	// Lookup returns the room id claimed for key, or "" if none.
	Lookup(ctx context.Context, key string) (string, error)
	// Claim records roomID for key unless another id got there first, and
	// returns the id that owns the key.
	Claim(ctx context.Context, key, roomID string) (string, error)
}

// pairSeparator never occurs inside a valid user id, so distinct pairs
// never share a key.
const pairSeparator = "/"

// PairKey is the order-independent key of a user pair.
func PairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + pairSeparator + userB
}

// PrivateRoomPair is one row of the pair index.
type PrivateRoomPair struct {
	PairKey   string `gorm:"primaryKey;size:300"`
	RoomID    string `gorm:"size:64;not null"`
	CreatedAt time.Time
}

// GormPairIndex keeps the pair index in a SQL table whose primary key is
// the pair key, so the database arbitrates concurrent claims.
type GormPairIndex struct {
	db *gorm.DB
}

// NewGormPairIndex migrates the table and returns the index.
func NewGormPairIndex(db *gorm.DB) (*GormPairIndex, error) {
	if err := db.AutoMigrate(&PrivateRoomPair{}); err != nil {
		return nil, fmt.Errorf("failed to migrate pair index: %w", err)
	}
	return &GormPairIndex{db: db}, nil
}

func (g *GormPairIndex) Lookup(ctx context.Context, key string) (string, error) {
	var pair PrivateRoomPair
	err := g.db.WithContext(ctx).Where("pair_key = ?", key).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: pair index lookup: %w", ErrStoreUnavailable, err)
	}
	return pair.RoomID, nil
}

func (g *GormPairIndex) Claim(ctx context.Context, key, roomID string) (string, error) {
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PrivateRoomPair{PairKey: key, RoomID: roomID}).Error
	if err != nil {
		return "", fmt.Errorf("%w: pair index claim: %w", ErrStoreUnavailable, err)
	}
	owner, err := g.Lookup(ctx, key)
	if err != nil {
		return "", err
	}
	if owner == "" {
		return "", fmt.Errorf("%w: pair index claim for %q vanished", ErrStoreUnavailable, key)
	}
	return owner, nil
}
