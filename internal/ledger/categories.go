package ledger

import (
	"context"
	"fmt"
	"time"

	"tally/internal/core"
	"tally/internal/kv"
	"tally/internal/log"
)

// DefaultCategories returns the global categories seeded on first run.
func DefaultCategories(now time.Time) []core.Category {
	defs := []struct {
		id, name string
		typ      core.TransactionType
	}{
		{"cat-salary", "Salary", core.Income},
		{"cat-freelance", "Freelance", core.Income},
		{"cat-investment", "Investment", core.Income},
		{"cat-other-income", "Other Income", core.Income},

		{"cat-food", "Food & Dining", core.Expense},
		{"cat-transport", "Transportation", core.Expense},
		{"cat-shopping", "Shopping", core.Expense},
		{"cat-entertainment", "Entertainment", core.Expense},
		{"cat-utilities", "Utilities", core.Expense},
		{"cat-healthcare", "Healthcare", core.Expense},
		{"cat-education", "Education", core.Expense},
		{"cat-rent", "Rent & Housing", core.Expense},
	}
	cats := make([]core.Category, 0, len(defs))
	for _, d := range defs {
		cats = append(cats, core.Category{ID: d.id, Name: d.name, Type: d.typ, CreatedAt: now})
	}
	return cats
}

// ListCategories returns the non-deleted categories. A storage failure
// yields an empty result.
func (s *Store) ListCategories(ctx context.Context) []core.Category {
	var cats []core.Category
	if _, err := kv.GetJSON(ctx, s.kv, kv.KeyCategories, &cats); err != nil {
		s.storageFailure(ctx, "Failed to load categories", err, log.OpList, nil)
		return []core.Category{}
	}
	out := make([]core.Category, 0, len(cats))
	for _, c := range cats {
		if !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out
}

// CategoriesFor returns the categories visible to userID of the given type:
// global ones plus the user's own. An empty type matches both.
func CategoriesFor(cats []core.Category, userID string, typ core.TransactionType) []core.Category {
	var out []core.Category
	for _, c := range cats {
		if !c.IsGlobal() && *c.UserID != userID {
			continue
		}
		if typ != "" && c.Type != typ {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SeedCategories writes the default categories when none are stored yet.
func (s *Store) SeedCategories(ctx context.Context) error {
	var existing []core.Category
	if _, err := kv.GetJSON(ctx, s.kv, kv.KeyCategories, &existing); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	defaults := DefaultCategories(s.now().UTC())
	if err := kv.SetJSON(ctx, s.kv, kv.KeyCategories, defaults); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	s.logger.InfoContext(ctx, "Default categories seeded", log.FieldCount, len(defaults))
	return nil
}

func categoryNames(cats []core.Category) map[string]string {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		if !c.IsDeleted {
			names[c.ID] = c.Name
		}
	}
	return names
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return UnknownCategory
}
