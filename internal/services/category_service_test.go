package services

import (
	"context"
	"errors"
	"testing"

	"finsight/internal/core"
)

func TestCategoryService_CreateAndDelete(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	ctx := context.Background()

	c, err := env.categories.Create(ctx, env.user.ID, CategoryInput{Name: " Hobbies "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.Name != "Hobbies" || c.Color != core.CategoryColor("Hobbies") {
		t.Errorf("created = %+v", c)
	}

	if _, err := env.categories.Create(ctx, env.user.ID, CategoryInput{Name: "hobbies"}); !errors.Is(err, core.ErrCategoryExists) {
		t.Errorf("duplicate Create() error = %v, want ErrCategoryExists", err)
	}

	if err := env.categories.Delete(ctx, env.user.ID, c.ID); err != nil {
		t.Fatalf("Delete() of unused category error = %v", err)
	}
	if _, err := env.store.GetCategory(ctx, c.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("category still present: %v", err)
	}
}

func TestCategoryService_DeleteInUse(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	ctx := context.Background()

	c, err := env.categories.Create(ctx, env.user.ID, CategoryInput{Name: "Garden", Color: "#123abc"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.ledger.AddExpense(ctx, env.user.ID, ExpenseInput{
		CategoryID: c.ID, Amount: dec("20"), Description: "Seeds", Date: core.DateOf(testNow),
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.categories.Delete(ctx, env.user.ID, c.ID); !errors.Is(err, core.ErrCategoryInUse) {
		t.Errorf("Delete() error = %v, want ErrCategoryInUse", err)
	}
}

func TestCategoryService_SystemCategoriesAreReadOnly(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	ctx := context.Background()
	id := env.categoryID(t, "Housing")

	if err := env.categories.Delete(ctx, env.user.ID, id); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("Delete(system) error = %v, want ErrForbidden", err)
	}
	if err := env.categories.Update(ctx, env.user.ID, id, CategoryInput{Name: "Home"}); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("Update(system) error = %v, want ErrForbidden", err)
	}
}

func TestCategoryService_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CategoryInput
		want error
	}{
		{"empty name", CategoryInput{Name: "   "}, core.ErrEmptyName},
		{"long name", CategoryInput{Name: "abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijX"}, core.ErrNameTooLong},
		{"bad color", CategoryInput{Name: "Pets", Color: "red"}, core.ErrInvalidColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.categories.Create(ctx, env.user.ID, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCategoryService_BudgetAndListing(t *testing.T) {
	env := newTestEnv(t, "1000", nil)
	ctx := context.Background()
	food := env.categoryID(t, "Food & Dining")

	if err := env.categories.SetBudget(ctx, env.user.ID, food, dec("200")); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	if _, err := env.ledger.AddExpense(ctx, env.user.ID, ExpenseInput{
		CategoryID: food, Amount: dec("250"), Description: "Dinner", Date: core.DateOf(testNow),
	}); err != nil {
		t.Fatal(err)
	}

	views, err := env.categories.List(ctx, env.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, v := range views {
		if v.ID != food {
			continue
		}
		found = true
		if !v.MonthSpent.Equal(dec("250")) || v.ExpenseCount != 1 {
			t.Errorf("view = spent %s count %d", v.MonthSpent, v.ExpenseCount)
		}
		if !v.OverCap() {
			t.Error("expected category to be over its cap")
		}
		if v.Editable {
			t.Error("system category should not be editable")
		}
	}
	if !found {
		t.Fatal("food category missing from listing")
	}

	if err := env.categories.SetBudget(ctx, env.user.ID, food, dec("0")); err != nil {
		t.Fatal(err)
	}
	budgets, _ := env.store.ListCategoryBudgets(ctx, env.user.ID)
	if len(budgets) != 0 {
		t.Errorf("budgets after clearing = %d, want 0", len(budgets))
	}

	if err := env.categories.SetBudget(ctx, env.user.ID, food, dec("-1")); !errors.Is(err, core.ErrInvalidBudget) {
		t.Errorf("negative SetBudget() error = %v", err)
	}
}
