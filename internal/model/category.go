package model

import (
	"time"

	"gorm.io/gorm"
)

// Category is a node in the catalog's category tree. Root categories
// have a nil ParentID.
type Category struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name        string `gorm:"size:255;not null;index" json:"name"`
	Description string `gorm:"size:1024" json:"description,omitempty"`
	ParentID    *uint  `gorm:"index" json:"parent_id,omitempty"`
}

func (Category) TableName() string { return "categories" }
