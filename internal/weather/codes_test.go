// ABOUTME: Tests for the weather code to condition table.
// ABOUTME: Every mapped code and the unmapped fallback are checked.

package weather

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupCondition(t *testing.T) {
	tests := []struct {
		codes []int
		icon  string
		desc  string
	}{
		{[]int{0}, "☀️", "Sunny"},
		{[]int{1, 2, 3}, "🌤️", "Partly Cloudy"},
		{[]int{45, 48}, "🌥️", "Fog"},
		{[]int{51, 53, 55}, "🌧️", "Drizzle"},
		{[]int{56, 57}, "❄️", "Freezing Drizzle"},
		{[]int{61, 63, 65}, "🌧️", "Rain"},
		{[]int{66, 67}, "❄️", "Freezing Rain"},
		{[]int{71, 73, 75}, "❄️", "Snow"},
		{[]int{77}, "❄️", "Snow Grains"},
		{[]int{80, 81, 82}, "🌧️", "Rain Showers"},
		{[]int{85, 86}, "❄️", "Snow Showers"},
		{[]int{95}, "⚡️", "Thunderstorm"},
		{[]int{96, 99}, "⚡️", "Thunderstorm with Hail"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			for _, code := range tt.codes {
				c, ok := LookupCondition(code)
				assert.True(t, ok, "code %d", code)
				assert.Equal(t, tt.icon, c.Icon, "code %d", code)
				assert.Equal(t, tt.desc, c.Description, "code %d", code)
			}
		})
	}
}

func TestLookupCondition_Unmapped(t *testing.T) {
	for _, code := range []int{-1, 4, 50, 62, 98, 100, 9999} {
		c, ok := LookupCondition(code)
		assert.False(t, ok, "code %d", code)
		assert.Equal(t, UnknownCondition, c, "code %d", code)
	}
}
