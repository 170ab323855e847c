package models

import (
	"time"
)

// Persisted borrowing states. StatusOverdue is never stored, see Borrowing.DisplayStatus.
const (
	StatusBorrowed = "borrowed"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Username string `gorm:"size:80;not null;uniqueIndex" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"not null;uniqueIndex" json:"email"`
	IsAdmin  bool   `gorm:"not null" json:"isAdmin"`
}

type Book struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	Title           string `gorm:"not null" json:"title"`
	Author          string `gorm:"not null" json:"author"`
	Description     string `gorm:"not null" json:"description"`
	ISBN            string `gorm:"column:isbn;not null" json:"isbn"`
	Genre           string `gorm:"not null;index" json:"genre"`
	PublicationYear *int   `json:"publicationYear"`
	CoverImage      string `gorm:"not null" json:"coverImage"`
	TotalCopies     int    `gorm:"not null;check:total_copies >= 1" json:"totalCopies"`
	AvailableCopies int    `gorm:"not null;check:available_copies >= 0 AND available_copies <= total_copies" json:"availableCopies"`
	Pages           *int   `json:"pages"`
	Rating          int    `gorm:"not null" json:"rating"`
	ReviewCount     int    `gorm:"not null" json:"reviewCount"`
}

type Borrowing struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index" json:"userId"`
	BookID     uint       `gorm:"not null;index" json:"bookId"`
	BorrowDate time.Time  `gorm:"not null" json:"borrowDate"`
	DueDate    time.Time  `gorm:"not null" json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate"`
	Status     string     `gorm:"size:20;not null" json:"status"`
}

// Active reports whether the copy is still out.
func (b *Borrowing) Active() bool {
	return b.ReturnDate == nil
}

// DisplayStatus is the status shown to readers: an active borrowing past its due date is overdue.
func (b *Borrowing) DisplayStatus(now time.Time) string {
	if b.Active() && now.After(b.DueDate) {
		return StatusOverdue
	}
	return b.Status
}

type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	BookID    uint      `gorm:"not null;index" json:"bookId"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// Clone returns b with its optional fields copied rather than shared.
func (b Book) Clone() Book {
	b.PublicationYear = clonePtr(b.PublicationYear)
	b.Pages = clonePtr(b.Pages)
	return b
}

func (b Borrowing) Clone() Borrowing {
	b.ReturnDate = clonePtr(b.ReturnDate)
	return b
}

func (r Review) Clone() Review {
	r.Comment = clonePtr(r.Comment)
	return r
}

func (u User) Clone() User {
	return u
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{&User{}, &Book{}, &Borrowing{}, &Review{}}
}
