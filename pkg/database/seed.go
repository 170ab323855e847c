package database

import (
	"context"
	"log/slog"

	"bookhaven/pkg/auth"
	"bookhaven/pkg/models"
	"bookhaven/pkg/store"
)

const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123"
)

func intPtr(v int) *int { return &v }

func seedBooks() []models.Book {
	return []models.Book{
		{
			Title:           "The Great Gatsby",
			Author:          "F. Scott Fitzgerald",
			Description:     "A story of wealth, love, and tragedy in the Roaring Twenties.",
			ISBN:            "9780743273565",
			Genre:           "Fiction",
			PublicationYear: intPtr(1925),
			CoverImage:      "https://m.media-amazon.com/images/I/71FTb9X6wsL._AC_UF1000,1000_QL80_.jpg",
			TotalCopies:     3,
			AvailableCopies: 3,
			Pages:           intPtr(180),
		},
		{
			Title:           "To Kill a Mockingbird",
			Author:          "Harper Lee",
			Description:     "A story of racial injustice and moral growth in the American South during the 1930s.",
			ISBN:            "9780061120084",
			Genre:           "Fiction",
			PublicationYear: intPtr(1960),
			CoverImage:      "https://m.media-amazon.com/images/I/71FLioeVKgL._AC_UF1000,1000_QL80_.jpg",
			TotalCopies:     5,
			AvailableCopies: 5,
			Pages:           intPtr(281),
		},
		{
			Title:           "1984",
			Author:          "George Orwell",
			Description:     "A dystopian social science fiction novel that depicts a totalitarian regime.",
			ISBN:            "9780451524935",
			Genre:           "Science Fiction",
			PublicationYear: intPtr(1949),
			CoverImage:      "https://m.media-amazon.com/images/I/71kxa1-0mfL._AC_UF1000,1000_QL80_.jpg",
			TotalCopies:     2,
			AvailableCopies: 2,
			Pages:           intPtr(328),
		},
	}
}

// Seed creates the admin account and the sample catalog when the store has no users yet.
func Seed(ctx context.Context, s store.Store, log *slog.Logger, hashCost int) error {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		log.Info("Database already contains data, skipping seed")
		return nil
	}

	hash, err := auth.HashPassword(seedAdminPassword, hashCost)
	if err != nil {
		return err
	}

	return s.WithTx(ctx, func(tx store.Store) error {
		admin := &models.User{
			Username: seedAdminUsername,
			Password: hash,
			Name:     "Administrator",
			Email:    "admin@bookhaven.com",
			IsAdmin:  true,
		}
		if err := tx.CreateUser(ctx, admin); err != nil {
			return err
		}
		for _, b := range seedBooks() {
			if err := tx.CreateBook(ctx, &b); err != nil {
				return err
			}
			log.Info("Created seed book", "id", b.ID, "title", b.Title)
		}
		log.Info("Initial data seeded successfully")
		return nil
	})
}
