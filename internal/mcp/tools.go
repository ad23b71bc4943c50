// ABOUTME: The get_weather tool, which answers with an embedded UI resource.
// ABOUTME: The resource points a host at the weather widget iframe for the requested city.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	WeatherToolName        = "get_weather"
	weatherToolDescription = "Display weather for a given city"

	// WeatherResourceURI identifies the widget resource inside tool results.
	WeatherResourceURI = "ui://weather"
	// uriListMIMEType tells the host to load the resource text as an iframe URL.
	uriListMIMEType = "text/uri-list"

	PreferredFrameSizeKey = "mcpui.dev/ui-preferred-frame-size"
)

// preferredFrameSize is width then height.
var preferredFrameSize = []string{"368px", "368px"}

// WeatherInput is the get_weather argument object.
type WeatherInput struct {
	City string `json:"city" jsonschema:"City to get the weather for"`
}

// WeatherTool builds UI resources pointing at the weather widget. Its
// definition is computed once and shared by every session's server.
type WeatherTool struct {
	definition *mcp.Tool
	widgetURL  atomic.Pointer[url.URL]
}

var _ Tool = (*WeatherTool)(nil)

// NewWeatherTool creates the tool for a widget served at widgetURL.
func NewWeatherTool(widgetURL string) (*WeatherTool, error) {
	if widgetURL == "" {
		return nil, errors.New("widget URL is required")
	}
	u, err := parseWidgetURL(widgetURL)
	if err != nil {
		return nil, err
	}

	schema, err := jsonschema.For[WeatherInput](nil)
	if err != nil {
		return nil, fmt.Errorf("building %s input schema: %w", WeatherToolName, err)
	}

	t := &WeatherTool{
		definition: &mcp.Tool{
			Name:        WeatherToolName,
			Description: weatherToolDescription,
			InputSchema: schema,
		},
	}
	t.widgetURL.Store(u)
	return t, nil
}

func parseWidgetURL(widgetURL string) (*url.URL, error) {
	u, err := url.Parse(widgetURL)
	if err != nil {
		return nil, fmt.Errorf("parsing widget URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("widget URL %q must be absolute", widgetURL)
	}
	return u, nil
}

// SetWidgetURL points subsequent tool results at a new widget address.
func (t *WeatherTool) SetWidgetURL(widgetURL string) error {
	u, err := parseWidgetURL(widgetURL)
	if err != nil {
		return err
	}
	t.widgetURL.Store(u)
	return nil
}

// IframeURL returns the widget URL with city as a query-escaped parameter.
func (t *WeatherTool) IframeURL(city string) string {
	u := *t.widgetURL.Load()
	q := u.Query()
	q.Set("city", city)
	u.RawQuery = q.Encode()
	return u.String()
}
