package tags

// defaultRules is the built-in keyword table.
var defaultRules = []Rule{
	{FoodCuisine, []string{
		"food", "cuisine", "restaurant", "cook", "dining", "indian", "chinese", "italian",
		"mexican", "asian", "spicy", "sweet", "recipe", "baking", "chef", "vegan", "vegetarian",
	}},
	{Technology, []string{
		" ai ", "artificial intelligence", "technology", "digital", "virtual", "assistant",
		"computer", "software", "programming", "tech", "data", "analytics", "machine",
		"learning", "coding", "developer", "robotics",
	}},
	{Entertainment, []string{
		"music", "bollywood", "streaming", "movie", "film", "cinema", " tv ", "series",
		"entertainment", "gaming", "dance", " art", "painting", "drawing", "sculpture",
		"culture", "concert", "theater", "theatre",
	}},
	{Sports, []string{
		"sport", "cricket", "football", "soccer", "basketball", "tennis", "badminton",
		"hockey", "baseball", "golf", "cycling", "swimming", "marathon", "running",
	}},
	{Travel, []string{
		"travel", "trip", "tourism", "vacation", "adventure", "backpacking", "hiking",
		"trekking", "camping", "explore",
	}},
	{Business, []string{
		"business", "entrepreneur", "startup", "finance", "marketing", "investing",
		"sales", "ecommerce",
	}},
	{Education, []string{
		"education", "school", "university", "teaching", "study", "course", "tutoring",
		"academic", "reading", "books",
	}},
	{Health, []string{
		"health", "fitness", "wellness", "yoga", "meditation", "nutrition", " gym",
		"medical",
	}},
	{Location, []string{
		"frisco", "texas", "california", "india", "city", "state", "country", "local",
		"neighborhood",
	}},
	{Lifestyle, []string{
		"outdoor", "indoor", "hobby", "family", "friends", "social", "fashion", "pets",
		"gardening", "parenting",
	}},
	{Professional, []string{
		"work", "career", "professional", " job", "office", "management", "leadership",
		"networking",
	}},
}

var defaultTable = mustTable(defaultRules)

// DefaultTable returns the built-in category table. The table is immutable and shared.
func DefaultTable() *Table {
	return defaultTable
}

func mustTable(rules []Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}
