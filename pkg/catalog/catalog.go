// Package catalog filters, sorts and pages the book list shown to readers.
// Every function returns a new slice and leaves its input untouched.
package catalog

import (
	"cmp"
	"slices"
	"strings"

	"bookhaven/pkg/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Availability string

const (
	AvailabilityAll         Availability = "all"
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

// ParseAvailability maps an unknown or empty mode to AvailabilityAll.
func ParseAvailability(s string) Availability {
	switch a := Availability(strings.ToLower(s)); a {
	case AvailabilityAvailable, AvailabilityUnavailable:
		return a
	}
	return AvailabilityAll
}

type SortKey string

const (
	SortTitleAsc  SortKey = "title_asc"
	SortTitleDesc SortKey = "title_desc"
	SortRecent    SortKey = "recent"
	SortRating    SortKey = "rating"
)

// ParseSort maps an unknown or empty key to SortRecent.
func ParseSort(s string) SortKey {
	switch k := SortKey(strings.ToLower(s)); k {
	case SortTitleAsc, SortTitleDesc, SortRating:
		return k
	}
	return SortRecent
}

func filter(books []models.Book, keep func(models.Book) bool) []models.Book {
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

// Search keeps books whose title, author, description or genre contains text, ignoring case.
// An empty text matches everything.
func Search(books []models.Book, text string) []models.Book {
	term := strings.ToLower(text)
	return filter(books, func(b models.Book) bool {
		for _, field := range []string{b.Title, b.Author, b.Description, b.Genre} {
			if strings.Contains(strings.ToLower(field), term) {
				return true
			}
		}
		return false
	})
}

// ByGenre keeps books whose genre equals genre, ignoring case.
func ByGenre(books []models.Book, genre string) []models.Book {
	return filter(books, func(b models.Book) bool {
		return strings.EqualFold(b.Genre, genre)
	})
}

func FilterByAvailability(books []models.Book, mode Availability) []models.Book {
	switch mode {
	case AvailabilityAvailable:
		return filter(books, func(b models.Book) bool { return b.AvailableCopies > 0 })
	case AvailabilityUnavailable:
		return filter(books, func(b models.Book) bool { return b.AvailableCopies == 0 })
	}
	return slices.Clone(books)
}

// Collators keep per-call buffers, so each sort builds its own.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase)
}

// Sort orders books by key. Ties keep their input order.
func Sort(books []models.Book, key SortKey) []models.Book {
	out := slices.Clone(books)
	switch key {
	case SortTitleAsc:
		c := newCollator()
		slices.SortStableFunc(out, func(a, b models.Book) int { return c.CompareString(a.Title, b.Title) })
	case SortTitleDesc:
		c := newCollator()
		slices.SortStableFunc(out, func(a, b models.Book) int { return c.CompareString(b.Title, a.Title) })
	case SortRating:
		slices.SortStableFunc(out, func(a, b models.Book) int { return cmp.Compare(b.Rating, a.Rating) })
	default:
		slices.SortStableFunc(out, func(a, b models.Book) int { return cmp.Compare(b.ID, a.ID) })
	}
	return out
}

// Page is one slice of a result set.
type Page struct {
	Items       []models.Book `json:"items"`
	CurrentPage int           `json:"currentPage"`
	TotalPages  int           `json:"totalPages"`
	TotalItems  int           `json:"totalItems"`
}

// TotalPages is ceil(totalItems/pageSize) but never less than 1.
// A non-positive pageSize puts everything on one page.
func TotalPages(totalItems, pageSize int) int {
	if pageSize <= 0 || totalItems == 0 {
		return 1
	}
	return (totalItems + pageSize - 1) / pageSize
}

// Paginate returns the 1-indexed page of books. Out-of-range pages come back empty;
// callers that want a valid page use ClampPage first.
func Paginate(books []models.Book, page, pageSize int) Page {
	p := Page{
		Items:       []models.Book{},
		CurrentPage: page,
		TotalPages:  TotalPages(len(books), pageSize),
		TotalItems:  len(books),
	}
	if pageSize <= 0 {
		if page == 1 {
			p.Items = slices.Clone(books)
		}
		return p
	}
	if page < 1 {
		return p
	}
	start := (page - 1) * pageSize
	if start >= len(books) {
		return p
	}
	end := min(start+pageSize, len(books))
	p.Items = slices.Clone(books[start:end])
	return p
}

// ClampPage resets a page outside 1..totalPages to 1.
func ClampPage(page, totalPages int) int {
	if page < 1 || page > totalPages {
		return 1
	}
	return page
}

// Genres returns the distinct genres of books in byte order, so "Mystery" sorts before "fantasy".
func Genres(books []models.Book) []string {
	seen := make(map[string]struct{}, len(books))
	genres := make([]string, 0)
	for _, b := range books {
		if _, ok := seen[b.Genre]; ok {
			continue
		}
		seen[b.Genre] = struct{}{}
		genres = append(genres, b.Genre)
	}
	slices.Sort(genres)
	return genres
}
