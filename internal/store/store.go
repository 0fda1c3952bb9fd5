package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kptumpala/inkpost/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when a user insert hits the unique email index.
	ErrEmailTaken = errors.New("email already taken")
)

// Store is the repository over the relational schema. Every method returns
// fully materialized values; relationship loading happens here, never lazily
// in a handler.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueErr(err) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) UserByID(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// Posts returns every post in insertion order, author included.
func (s *Store) Posts(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).Preload("Author").Order("id asc").Find(&posts).Error
	return posts, err
}

// PostByID returns one post with its author and full comment thread, each
// comment carrying its own author.
func (s *Store) PostByID(ctx context.Context, id uint) (models.Post, error) {
	var p models.Post
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("comments.id asc") }).
		Preload("Comments.User").
		First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Post{}, ErrNotFound
	}
	return p, err
}

func (s *Store) UpdatePost(ctx context.Context, id uint, title, subtitle, imageURL, body string) error {
	res := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(map[string]any{
		"title":     title,
		"subtitle":  subtitle,
		"image_url": imageURL,
		"body":      body,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateComment inserts a comment after confirming the target post exists,
// inside one transaction so a concurrent delete cannot leave a dangling
// reference.
func (s *Store) CreateComment(ctx context.Context, cm *models.Comment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Select("id").First(&post, cm.PostID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return tx.Create(cm).Error
	})
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// sqlite: "UNIQUE constraint failed: ...", postgres: "duplicate key value"
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
