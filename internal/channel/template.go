// internal/channel/template.go
package channel

import (
	"strings"

	"github.com/unclebandit/leadflow-backend/internal/model"
)

// RenderTemplate replaces {key} placeholders with values from data.
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func personalize(template string, lead *model.Lead) string {
	if template == "" || lead == nil {
		return template
	}
	return RenderTemplate(template, lead.Vars())
}
