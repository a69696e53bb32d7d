package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"picme-bot/internal/models"
)

func TestAggregateCharacteristicsMajority(t *testing.T) {
	attrs := []map[string]interface{}{
		{"hair_color": "A", "eye_color": "blue"},
		{"hair_color": "A"},
		{"hair_color": "B"},
	}

	result, keys := aggregateCharacteristics(attrs)

	// hair_color: present on all three, mode value wins.
	assert.Equal(t, "A", result["hair_color"])
	// eye_color: present on one of three, below the half threshold.
	assert.NotContains(t, result, "eye_color")
	assert.Equal(t, []string{"hair_color"}, keys)
}

func TestAggregateCharacteristicsTieBreak(t *testing.T) {
	attrs := []map[string]interface{}{
		{"hair_color": "A"},
		{"hair_color": "B"},
	}

	result, _ := aggregateCharacteristics(attrs)

	// Even split resolves to the first-seen value.
	assert.Equal(t, "A", result["hair_color"])
}

func TestAggregateCharacteristicsExactlyHalf(t *testing.T) {
	attrs := []map[string]interface{}{
		{"hair_color": "A", "beard": "full"},
		{"hair_color": "A"},
		{"hair_color": "A", "beard": "full"},
		{"hair_color": "A"},
	}

	result, _ := aggregateCharacteristics(attrs)

	// Present on exactly half of the images still qualifies.
	assert.Equal(t, "full", result["beard"])
}

func TestAggregateCharacteristicsSkipsNonStrings(t *testing.T) {
	attrs := []map[string]interface{}{
		{"age": 30.0, "hair_color": "A"},
		{"age": 30.0, "hair_color": "A"},
	}

	result, _ := aggregateCharacteristics(attrs)

	assert.NotContains(t, result, "age")
	assert.Equal(t, "A", result["hair_color"])
}

func TestAggregateCharacteristicsEmpty(t *testing.T) {
	result, keys := aggregateCharacteristics(nil)
	assert.Empty(t, result)
	assert.Nil(t, keys)
}

func TestFindRejectReasonPriority(t *testing.T) {
	tests := []struct {
		name     string
		attrs    map[string]interface{}
		reason   models.RejectReason
		rejected bool
	}{
		{
			name:     "no person beats sunglasses",
			attrs:    map[string]interface{}{"wearing_sunglasses": true},
			reason:   models.RejectNoPerson,
			rejected: true,
		},
		{
			name:     "funny face beats blurry",
			attrs:    map[string]interface{}{"name": "man", "funny_face": true, "blurry": true},
			reason:   models.RejectFunnyFace,
			rejected: true,
		},
		{
			name:     "blurry beats hat",
			attrs:    map[string]interface{}{"name": "woman", "blurry": "true", "wearing_hat": true},
			reason:   models.RejectBlurry,
			rejected: true,
		},
		{
			name:     "sunglasses beats multiple people",
			attrs:    map[string]interface{}{"name": "man", "wearing_sunglasses": true, "includes_multiple_people": true},
			reason:   models.RejectSunglasses,
			rejected: true,
		},
		{
			name:     "multiple people alone",
			attrs:    map[string]interface{}{"name": "man", "includes_multiple_people": true},
			reason:   models.RejectMultiplePeople,
			rejected: true,
		},
		{
			name:     "hat alone",
			attrs:    map[string]interface{}{"name": "man", "wearing_hat": "yes"},
			reason:   models.RejectHat,
			rejected: true,
		},
		{
			name:     "clean image passes",
			attrs:    map[string]interface{}{"name": "woman", "blurry": false},
			rejected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, rejected := findRejectReason(tt.attrs)
			assert.Equal(t, tt.rejected, rejected)
			if tt.rejected {
				assert.Equal(t, tt.reason, reason)
			}
		})
	}
}
