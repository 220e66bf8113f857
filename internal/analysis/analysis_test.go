package analysis_test

import (
	"anonchat/backend/internal/analysis"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetWeight(t *testing.T) {
	assert.Equal(t, 5, analysis.GetWeight("Low"))
	assert.Equal(t, 250, analysis.GetWeight("Critical"))
	assert.Equal(t, 0, analysis.GetWeight("Unknown"))
}

func TestIsCritical(t *testing.T) {
	assert.False(t, analysis.IsCritical("Low"))
	assert.True(t, analysis.IsCritical("Medium"))
	assert.True(t, analysis.IsCritical("Critical"))
	assert.False(t, analysis.IsCritical(""))
}

func TestTypes(t *testing.T) {
	assert.Equal(t, []string{"Low", "Medium", "Critical"}, analysis.Types())
}
