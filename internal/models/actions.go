package models

// ActionCategory describes one coarse behavior bucket the user picks
// before the AI deep-dive questions.
type ActionCategory struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ActionCategories is the closed master list of behavior buckets,
// in picker display order.
var ActionCategories = []ActionCategory{
	{ID: "movement", Label: "移動", Description: "通過・歩行など移動していた"},
	{ID: "stay", Label: "滞留", Description: "その場に留まっていた"},
	{ID: "approach", Label: "接近", Description: "人や建物に近づいてきた"},
	{ID: "feeding", Label: "採食", Description: "何かを食べていた"},
	{ID: "threat", Label: "威嚇", Description: "威嚇行動をとった"},
	{ID: "escape", Label: "逃避", Description: "逃げていった"},
	{ID: "damage", Label: "被害", Description: "農作物・物品の被害"},
	{ID: "other", Label: "その他", Description: "上記以外・わからない"},
}

var actionCategoriesByID = func() map[string]ActionCategory {
	m := make(map[string]ActionCategory, len(ActionCategories))
	for _, c := range ActionCategories {
		m[c.ID] = c
	}
	return m
}()

// IsValidActionCategory checks if the given id is a known category.
func IsValidActionCategory(id string) bool {
	_, ok := actionCategoriesByID[id]
	return ok
}

// ActionCategoryLabel returns the Japanese label for a category id,
// falling back to その他 for unknown ids.
func ActionCategoryLabel(id string) string {
	if c, ok := actionCategoriesByID[id]; ok {
		return c.Label
	}
	return "その他"
}
