package service

// FeatureService answers feature-flag queries from the configured feature
// list.
type FeatureService struct {
	enabled map[string]bool
}

func NewFeatureService(features []string) *FeatureService {
	enabled := make(map[string]bool, len(features))
	for _, feature := range features {
		enabled[feature] = true
	}
	return &FeatureService{enabled: enabled}
}

func (s *FeatureService) Enabled(feature string) bool {
	return s.enabled[feature]
}
