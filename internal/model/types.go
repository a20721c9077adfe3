package model

import "time"

// User represents a registered account. PasswordHash never leaves the repo/auth layer.
type User struct {
	ID           int64
	Name         string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Book is a catalog entry. CategoryID is optional (0 = uncategorized).
type Book struct {
	ID          int64
	Title       string
	Author      string
	Description string
	CategoryID  int64
	Tags        []Tag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category groups books.
type Category struct {
	ID   int64
	Name string
}

// Tag is a free-form label attached to books via book_tags.
type Tag struct {
	ID   int64
	Name string
}

// BookFilter narrows List queries. Zero values mean "no filter".
type BookFilter struct {
	CategoryID int64
	TagID      int64
	Search     string
	Limit      int
	Offset     int
}
