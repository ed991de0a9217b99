package domain

// Category is a subject area a paper is filed under.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// FacultyMember is a potential advisor, synced from the user directory.
type FacultyMember struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Active     bool   `json:"active"`
}

// DefaultCategories mirrors the categories seeded by the initial migration.
// The memory storage driver starts with them.
func DefaultCategories() []Category {
	return []Category{
		{ID: "bio", Name: "Life Sciences", Description: "Biology, medicine and health"},
		{ID: "cs", Name: "Computer Science", Description: "Computing, software and information systems"},
		{ID: "eng", Name: "Engineering", Description: "Applied engineering disciplines"},
		{ID: "hum", Name: "Humanities", Description: "History, philosophy and languages"},
		{ID: "phys", Name: "Physical Sciences", Description: "Physics, chemistry and earth sciences"},
		{ID: "soc", Name: "Social Sciences", Description: "Economics, sociology and education"},
	}
}
