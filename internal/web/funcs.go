package web

import (
	"fmt"
	"html/template"
	"time"

	"github.com/MarcoPoloResearchLab/polly/internal/polls"
)

const dateLayout = "Jan 2, 2006"

// NewFuncMap returns the helpers available to every template. clock anchors timeAgo.
func NewFuncMap(clock func() time.Time) template.FuncMap {
	if clock == nil {
		clock = time.Now
	}
	return template.FuncMap{
		"markdown": RenderMarkdown,
		"percent": func(votes int, total int) string {
			return fmt.Sprintf("%d%%", polls.Percentage(votes, total))
		},
		"add": func(a, b int) int {
			return a + b
		},
		"date": func(value time.Time) string {
			if value.IsZero() {
				return ""
			}
			return value.UTC().Format(dateLayout)
		},
		"timeAgo": func(value time.Time) string {
			return timeAgo(clock(), value)
		},
		"dict": dict,
	}
}

func timeAgo(now time.Time, value time.Time) string {
	if value.IsZero() {
		return ""
	}
	seconds := int(now.Sub(value).Seconds())
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return plural(seconds/60, "minute")
	case seconds < 86400:
		return plural(seconds/3600, "hour")
	case seconds < 2592000:
		return plural(seconds/86400, "day")
	case seconds < 31536000:
		return plural(seconds/2592000, "month")
	}
	return plural(seconds/31536000, "year")
}

func plural(count int, unit string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", count, unit)
}

func dict(values ...interface{}) (map[string]interface{}, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("dict expects key/value pairs")
	}
	result := make(map[string]interface{}, len(values)/2)
	for index := 0; index < len(values); index += 2 {
		key, ok := values[index].(string)
		if !ok {
			return nil, fmt.Errorf("dict keys must be strings")
		}
		result[key] = values[index+1]
	}
	return result, nil
}
