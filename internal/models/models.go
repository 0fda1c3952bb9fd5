package models

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"
)

// User is a registered account. The first account ever created carries the
// admin flag and is the only identity allowed to author posts.
type User struct {
	ID           uint   `gorm:"primarykey"`
	Name         string `gorm:"size:250;not null"`
	Email        string `gorm:"size:250;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:250;not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`
	CreatedAt    time.Time
	Posts        []Post    `gorm:"foreignKey:AuthorID"`
	Comments     []Comment `gorm:"foreignKey:UserID"`
}

// Post is a blog entry. Date is the human-readable publication date shown on
// the page, stamped once at creation.
type Post struct {
	ID        uint   `gorm:"primarykey"`
	Title     string `gorm:"size:250;not null"`
	Subtitle  string `gorm:"size:250;not null"`
	Body      string `gorm:"not null"`
	ImageURL  string `gorm:"not null"`
	Date      string `gorm:"size:30"`
	AuthorID  uint   `gorm:"not null;index"`
	Author    User
	Comments  []Comment `gorm:"foreignKey:PostID"`
	CreatedAt time.Time
}

// Comment belongs to one Post and one User. Comments are append-only; there
// is no edit or delete surface for them.
type Comment struct {
	ID        uint   `gorm:"primarykey"`
	Body      string `gorm:"not null"`
	UserID    uint   `gorm:"not null;index"`
	User      User
	PostID    uint `gorm:"not null;index"`
	CreatedAt time.Time
}

// PostDateFormat renders like "September 1,2026".
const PostDateFormat = "January 2,2006"

// AvatarURL returns the Gravatar image URL for the user's email.
func (u User) AvatarURL(size int) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(u.Email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?s=%d&d=retro", sum, size)
}
