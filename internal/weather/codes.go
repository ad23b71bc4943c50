// ABOUTME: WMO weather code to icon and description mapping.
// ABOUTME: Codes are matched against ordered sets; the first set containing the code wins.

package weather

import "slices"

// Condition is how a weather code is presented in the widget.
type Condition struct {
	Icon        string
	Description string
}

// UnknownCondition is shown for codes outside every known set.
var UnknownCondition = Condition{Icon: "🌡️", Description: "Unknown"}

type codeSet struct {
	codes     []int
	condition Condition
}

// conditions is checked in order.
var conditions = []codeSet{
	{[]int{0}, Condition{"☀️", "Sunny"}},
	{[]int{1, 2, 3}, Condition{"🌤️", "Partly Cloudy"}},
	{[]int{45, 48}, Condition{"🌥️", "Fog"}},
	{[]int{51, 53, 55}, Condition{"🌧️", "Drizzle"}},
	{[]int{56, 57}, Condition{"❄️", "Freezing Drizzle"}},
	{[]int{61, 63, 65}, Condition{"🌧️", "Rain"}},
	{[]int{66, 67}, Condition{"❄️", "Freezing Rain"}},
	{[]int{71, 73, 75}, Condition{"❄️", "Snow"}},
	{[]int{77}, Condition{"❄️", "Snow Grains"}},
	{[]int{80, 81, 82}, Condition{"🌧️", "Rain Showers"}},
	{[]int{85, 86}, Condition{"❄️", "Snow Showers"}},
	{[]int{95}, Condition{"⚡️", "Thunderstorm"}},
	{[]int{96, 99}, Condition{"⚡️", "Thunderstorm with Hail"}},
}

// LookupCondition returns the condition for code. ok is false for unmapped
// codes, in which case UnknownCondition is returned.
func LookupCondition(code int) (c Condition, ok bool) {
	for _, set := range conditions {
		if slices.Contains(set.codes, code) {
			return set.condition, true
		}
	}
	return UnknownCondition, false
}
