// ABOUTME: Renders forecasts into the widget's HTML fragment using embedded templates.
// ABOUTME: Shows current conditions plus up to three forecast days.

package weather

import (
	"bytes"
	"cmp"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"
	"time"
)

//go:embed templates/widget.html
var templateFS embed.FS

// widgetDays is how many daily cards the widget shows.
const widgetDays = 3

// defaultTemperatureUnit labels temperatures when upstream omits current_units.
const defaultTemperatureUnit = "°F"

// missingValue stands in for a daily value upstream reported as null.
const missingValue = "–"

// dayBackgrounds are the card gradients, in day order.
var dayBackgrounds = []template.CSS{
	"linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	"linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
	"linear-gradient(135deg, #fa709a 0%, #fee140 100%)",
}

type widgetData struct {
	Current currentView
	Days    []dayView
}

type currentView struct {
	Condition
	Temperature string
	Unit        string
}

type dayView struct {
	Condition
	Name       string
	Max        string
	Min        string
	Background template.CSS
}

type errorData struct {
	Message string
}

// Renderer turns forecasts into HTML fragments.
type Renderer struct {
	tmpl   *template.Template
	logger *slog.Logger
}

// NewRenderer parses the embedded widget templates.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/widget.html")
	if err != nil {
		return nil, fmt.Errorf("parsing widget templates: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{tmpl: tmpl, logger: logger}, nil
}

// Render returns the widget fragment for fc.
func (r *Renderer) Render(fc *Forecast) (string, error) {
	if fc == nil {
		return "", fmt.Errorf("rendering widget: no forecast")
	}

	data := widgetData{
		Current: currentView{
			Condition:   r.condition(fc.Current.WeatherCode),
			Temperature: FormatTemperature(fc.Current.Temperature),
			Unit:        cmp.Or(fc.CurrentUnits.Temperature, defaultTemperatureUnit),
		},
	}

	n := min(fc.Daily.Days(), widgetDays)
	for i := range n {
		data.Days = append(data.Days, dayView{
			Condition:  r.dailyCondition(fc.Daily.WeatherCode[i]),
			Name:       DayName(fc.Daily.Time[i]),
			Max:        formatDailyTemperature(fc.Daily.TemperatureMax[i]),
			Min:        formatDailyTemperature(fc.Daily.TemperatureMin[i]),
			Background: dayBackgrounds[i%len(dayBackgrounds)],
		})
	}

	return r.execute("widget", data)
}

// RenderError returns a fragment showing message in place of the forecast.
func (r *Renderer) RenderError(message string) (string, error) {
	return r.execute("error", errorData{Message: message})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) condition(code int) Condition {
	c, ok := LookupCondition(code)
	if !ok {
		r.logger.Warn("unmapped weather code", "code", code)
	}
	return c
}

// dailyCondition is the condition for a daily code; a null code is unknown.
func (r *Renderer) dailyCondition(code *int) Condition {
	if code == nil {
		return UnknownCondition
	}
	return r.condition(*code)
}

// formatDailyTemperature prints v with a degree sign, or a dash when it is null.
func formatDailyTemperature(v *float64) string {
	if v == nil {
		return missingValue
	}
	return FormatTemperature(*v) + "°"
}

// FormatTemperature prints v in the shortest form that round-trips, so
// upstream values appear verbatim.
func FormatTemperature(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DayName returns the short weekday name for a YYYY-MM-DD date, or the input
// unchanged if it does not parse.
func DayName(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Weekday().String()[:3]
}
