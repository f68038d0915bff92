package domain

// Scope is an OAuth scope known to the registry, seeded from the distinct
// scope values found on relying parties.
type Scope struct {
	Name   string            `json:"name"`
	Titles map[string]string `json:"titles"`
}

// Sequence is a monotonic counter document used to allocate legacy numeric
// identifiers. It is mutated only by atomic increment.
type Sequence struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}
