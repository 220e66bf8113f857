// Package analysis decides how much a complaint weighs.
package analysis

import (
	"anonchat/backend/internal/config"
	"sort"
)

// GetWeight returns the weight (penalty) for a given complaint type.
// It returns 0 if the complaint type is not recognized.
func GetWeight(complaintType string) int {
	return config.ComplaintWeights[complaintType]
}

// IsCritical reports whether a complaint of this type turns into a warning.
func IsCritical(complaintType string) bool {
	return GetWeight(complaintType) >= config.CriticalComplaintWeight
}

// Types lists the known complaint types, lightest first.
func Types() []string {
	types := make([]string, 0, len(config.ComplaintWeights))
	for t := range config.ComplaintWeights {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return config.ComplaintWeights[types[i]] < config.ComplaintWeights[types[j]]
	})
	return types
}
