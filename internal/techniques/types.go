package techniques

// Technique kinds
const (
	KindBreathing  = "breathing"
	KindMeditation = "meditation"
	KindJournaling = "journaling"
)

// Technique describes one guided wellness activity the backend can propose.
// The ID doubles as the backend's internal routing token for the technique,
// which is why the stream normalizer filters bare IDs out of assistant text.
type Technique struct {
	ID              string `yaml:"id" json:"id"`
	DisplayName     string `yaml:"display_name" json:"display_name"`
	Kind            string `yaml:"kind" json:"kind"`
	Description     string `yaml:"description" json:"description"`
	DurationSeconds int    `yaml:"duration_seconds" json:"duration_seconds"`
}

// Catalog is the YAML file shape.
type Catalog struct {
	Techniques []Technique `yaml:"techniques"`
	// ExtraRoutingTokens are routing-only sentinels with no technique behind
	// them (e.g. the "no technique matched" token).
	ExtraRoutingTokens []string `yaml:"extra_routing_tokens"`
}
