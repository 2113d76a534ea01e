package models

import (
	"time"

	"github.com/lib/pq"
)

// ItemCategory is the closed set of garment categories.
type ItemCategory string

const (
	CategoryTops        ItemCategory = "tops"
	CategoryBottoms     ItemCategory = "bottoms"
	CategoryDresses     ItemCategory = "dresses"
	CategoryOuterwear   ItemCategory = "outerwear"
	CategoryShoes       ItemCategory = "shoes"
	CategoryAccessories ItemCategory = "accessories"
)

// Valid reports whether c is a known category.
func (c ItemCategory) Valid() bool {
	switch c {
	case CategoryTops, CategoryBottoms, CategoryDresses, CategoryOuterwear, CategoryShoes, CategoryAccessories:
		return true
	default:
		return false
	}
}

// ItemCondition is the closed set of garment conditions, best first.
type ItemCondition string

const (
	ConditionLikeNew   ItemCondition = "like-new"
	ConditionExcellent ItemCondition = "excellent"
	ConditionGood      ItemCondition = "good"
	ConditionFair      ItemCondition = "fair"
)

// Rank orders conditions from best (0) to worst (3); unknown values rank -1.
func (c ItemCondition) Rank() int {
	switch c {
	case ConditionLikeNew:
		return 0
	case ConditionExcellent:
		return 1
	case ConditionGood:
		return 2
	case ConditionFair:
		return 3
	default:
		return -1
	}
}

// Valid reports whether c is a known condition.
func (c ItemCondition) Valid() bool {
	return c.Rank() >= 0
}

// Item is a listed garment.
type Item struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	Category     ItemCategory   `db:"category" json:"category"`
	Type         string         `db:"type" json:"type"`
	Size         string         `db:"size" json:"size"`
	Condition    ItemCondition  `db:"condition" json:"condition"`
	Tags         pq.StringArray `db:"tags" json:"tags"`
	Images       pq.StringArray `db:"images" json:"images"`
	PointsValue  int            `db:"points_value" json:"points_value"`
	UploaderID   string         `db:"uploader_id" json:"uploader_id"`
	UploaderName string         `db:"uploader_name" json:"uploader_name"`
	IsApproved   bool           `db:"is_approved" json:"is_approved"`
	IsAvailable  bool           `db:"is_available" json:"is_available"`
	Featured     bool           `db:"featured" json:"featured"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Visible reports whether the item belongs in the public catalog.
func (i *Item) Visible() bool {
	return i != nil && i.IsApproved && i.IsAvailable
}

// PendingModeration reports whether the item waits in the moderation queue.
func (i *Item) PendingModeration() bool {
	return i != nil && !i.IsApproved && i.IsAvailable
}

// CatalogFilter captures browse filters. Empty or "all" category/condition match everything.
type CatalogFilter struct {
	Search    string
	Category  string
	Condition string
	Page      int
	PageSize  int
}

// ItemFilter narrows repository scans. Nil flags are not filtered on.
type ItemFilter struct {
	UploaderID string
	Approved   *bool
	Available  *bool
	Featured   *bool
	Category   ItemCategory
	Condition  ItemCondition
	Limit      int
	Offset     int
}
