package config

// NearbyArea is a static cold-start entry: urbanizations known to sit next to
// each other before the learning store has seen any searches. Names are in
// normalized form (lower case, no diacritics).
type NearbyArea struct {
	Name      string   `json:"name"`
	Neighbors []string `json:"neighbors"`
}

// StaticNearbyAreas seeds tier-4 expansion until learned edges clear the
// confidence floor.
var StaticNearbyAreas = []NearbyArea{
	{
		Name:      "nueva andalucia",
		Neighbors: []string{"aloha", "la campana", "puerto banus"},
	},
	{
		Name:      "el paraiso",
		Neighbors: []string{"atalaya", "benamara", "costalita"},
	},
	{
		Name:      "la quinta",
		Neighbors: []string{"nueva andalucia", "el madronal"},
	},
	// Add more areas here as needed
}

// GetStaticNearby returns the configured neighbors for an urbanization, or
// nil when the area is unknown.
func GetStaticNearby(name string) []string {
	for _, area := range StaticNearbyAreas {
		if area.Name == name {
			return area.Neighbors
		}
	}
	return nil
}
