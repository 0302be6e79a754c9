package models

// AnimalType describes one reportable animal from the master data.
type AnimalType struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// AnimalTypes is the closed master list of reportable animals.
// Order matters: it is the display order of the animal picker.
var AnimalTypes = []AnimalType{
	{ID: "monkey", Label: "サル", Emoji: "🐵"},
	{ID: "deer", Label: "シカ", Emoji: "🦌"},
	{ID: "wild_boar", Label: "イノシシ", Emoji: "🐗"},
	{ID: "bear", Label: "クマ", Emoji: "🐻"},
	{ID: "raccoon_dog", Label: "タヌキ", Emoji: "🦝"},
	{ID: "fox", Label: "キツネ", Emoji: "🦊"},
	{ID: "badger", Label: "アナグマ", Emoji: "🦡"},
	{ID: "masked_palm_civet", Label: "ハクビシン", Emoji: "🐾"},
	{ID: "hare", Label: "ノウサギ", Emoji: "🐇"},
	{ID: "serow", Label: "カモシカ", Emoji: "🐐"},
	{ID: "raccoon", Label: "アライグマ", Emoji: "🦝"},
	{ID: "nutria", Label: "ヌートリア", Emoji: "🐀"},
	{ID: "other", Label: "その他", Emoji: "❓"},
}

// animalTypesByID indexes the master list for label lookups.
var animalTypesByID = func() map[string]AnimalType {
	m := make(map[string]AnimalType, len(AnimalTypes))
	for _, at := range AnimalTypes {
		m[at.ID] = at
	}
	return m
}()

// IsValidAnimalType checks if the given id is in the master list.
func IsValidAnimalType(id string) bool {
	_, ok := animalTypesByID[id]
	return ok
}

// AnimalTypeLabel returns the Japanese label for an animal id,
// falling back to その他 for unknown ids.
func AnimalTypeLabel(id string) string {
	if at, ok := animalTypesByID[id]; ok {
		return at.Label
	}
	return "その他"
}

// AnimalTypeEmoji returns the emoji for an animal id.
func AnimalTypeEmoji(id string) string {
	if at, ok := animalTypesByID[id]; ok {
		return at.Emoji
	}
	return "❓"
}
