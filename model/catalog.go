package model

// Family is the closed set of model families the backend knows how to drive.
// A model identifier is resolved to a ModelSpec exactly once, at
// configuration time; nothing downstream re-parses identifier strings.
type Family string

const (
	FamilyGPT      Family = "gpt"
	FamilyDeepSeek Family = "deepseek"
	FamilyQwen     Family = "qwen"
)

// ModelSpec pairs a model identifier with its capability flags.
type ModelSpec struct {
	ID                string
	Family            Family
	SupportsTools     bool
	SupportsReasoning bool
	EmitsImages       bool
}

// Catalog is the set of configured models, keyed by identifier.
type Catalog map[string]ModelSpec

// Resolve returns the spec for id; ok is false for unknown identifiers.
func (c Catalog) Resolve(id string) (ModelSpec, bool) {
	if spec, ok := c[id]; ok {
		return spec, true
	}
	return ModelSpec{}, false
}

// DefaultCatalog lists the models the service ships with. The identifiers
// match what the configured OpenAI-compatible endpoint serves.
func DefaultCatalog() Catalog {
	specs := []ModelSpec{
		{ID: "gpt-4o-mini", Family: FamilyGPT, SupportsTools: true},
		{ID: "gpt-4o", Family: FamilyGPT, SupportsTools: true, EmitsImages: true},
		{ID: "o3-mini", Family: FamilyGPT, SupportsTools: true, SupportsReasoning: true},
		{ID: "deepseek-chat", Family: FamilyDeepSeek, SupportsTools: true},
		{ID: "deepseek-reasoner", Family: FamilyDeepSeek, SupportsReasoning: true},
		{ID: "qwen-turbo", Family: FamilyQwen, SupportsTools: true},
		{ID: "qwen-plus", Family: FamilyQwen, SupportsTools: true, SupportsReasoning: true},
	}
	catalog := make(Catalog, len(specs))
	for _, s := range specs {
		catalog[s.ID] = s
	}
	return catalog
}
