package models

import "time"

// Patches carry the fields an update merges into a stored entity; nil fields are left untouched.

type UserPatch struct {
	Username *string `json:"username" binding:"omitempty,min=3,max=80"`
	Password *string `json:"password" binding:"omitempty,min=6"`
	Name     *string `json:"name" binding:"omitempty,min=1"`
	Email    *string `json:"email" binding:"omitempty,email"`
	IsAdmin  *bool   `json:"isAdmin"`
}

func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
}

type BookPatch struct {
	Title           *string `json:"title" binding:"omitempty,min=1"`
	Author          *string `json:"author" binding:"omitempty,min=1"`
	Description     *string `json:"description"`
	ISBN            *string `json:"isbn"`
	Genre           *string `json:"genre" binding:"omitempty,min=1"`
	PublicationYear *int    `json:"publicationYear"`
	CoverImage      *string `json:"coverImage"`
	TotalCopies     *int    `json:"totalCopies" binding:"omitempty,min=1"`
	AvailableCopies *int    `json:"availableCopies" binding:"omitempty,min=0"`
	Pages           *int    `json:"pages" binding:"omitempty,min=1"`
	Rating          *int    `json:"rating" binding:"omitempty,min=0,max=5"`
	ReviewCount     *int    `json:"reviewCount" binding:"omitempty,min=0"`
}

func (p BookPatch) Apply(b *Book) {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	if p.Genre != nil {
		b.Genre = *p.Genre
	}
	if p.PublicationYear != nil {
		b.PublicationYear = p.PublicationYear
	}
	if p.CoverImage != nil {
		b.CoverImage = *p.CoverImage
	}
	if p.TotalCopies != nil {
		b.TotalCopies = *p.TotalCopies
	}
	if p.AvailableCopies != nil {
		b.AvailableCopies = *p.AvailableCopies
	}
	if p.Pages != nil {
		b.Pages = p.Pages
	}
	if p.Rating != nil {
		b.Rating = *p.Rating
	}
	if p.ReviewCount != nil {
		b.ReviewCount = *p.ReviewCount
	}
}

type BorrowingPatch struct {
	DueDate    *time.Time
	ReturnDate *time.Time
	Status     *string
}

func (p BorrowingPatch) Apply(b *Borrowing) {
	if p.DueDate != nil {
		b.DueDate = *p.DueDate
	}
	if p.ReturnDate != nil {
		rd := *p.ReturnDate
		b.ReturnDate = &rd
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
}
