package server

import (
	"strconv"
	"strings"
)

const settingsSection = "lean4UnicodeInput"

type completionSettings struct {
	// LabelPrefix shows labels with the trigger character in front.
	LabelPrefix bool
	// AdjustIndentation asks the editor to re-indent multi-line expansions.
	AdjustIndentation bool
}

type serverSettings struct {
	Completion completionSettings
}

func defaultServerSettings() serverSettings {
	return serverSettings{
		Completion: completionSettings{
			LabelPrefix:       true,
			AdjustIndentation: true,
		},
	}
}

// parseSettingsFromRaw reads initializationOptions. Settings may sit under
// the "lean4UnicodeInput" section, as nested objects or as dotted keys.
// Anything unrecognized keeps the value from base.
func parseSettingsFromRaw(base serverSettings, raw interface{}) serverSettings {
	rawMap, ok := raw.(map[string]interface{})
	if !ok {
		return base
	}
	if nested, ok := rawMap[settingsSection]; ok {
		return parseSettingsFromRaw(base, nested)
	}
	return applySettingsMap(base, rawMap)
}

func applySettingsMap(settings serverSettings, raw map[string]interface{}) serverSettings {
	if completionRaw, ok := raw["completion"].(map[string]interface{}); ok {
		if value, ok := toBool(completionRaw["labelPrefix"]); ok {
			settings.Completion.LabelPrefix = value
		}
		if value, ok := toBool(completionRaw["adjustIndentation"]); ok {
			settings.Completion.AdjustIndentation = value
		}
	}
	if value, ok := toBool(raw["completion.labelPrefix"]); ok {
		settings.Completion.LabelPrefix = value
	}
	if value, ok := toBool(raw["completion.adjustIndentation"]); ok {
		settings.Completion.AdjustIndentation = value
	}
	return settings
}

func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}
