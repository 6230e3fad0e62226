package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/cashback-intel/internal/model"
)

const notFoundOffer = "Not found"

// cleanJSON strips markdown fences and returns the text between the first
// '{' and the last '}'.
func cleanJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseResponse turns raw model output into a result for level. It returns
// nil for malformed output or when the model reported no merchant.
func ParseResponse(level model.Level, text string) *model.ExtractionResult {
	raw, ok := cleanJSON(text)
	if !ok {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}

	switch level {
	case model.LevelBasic:
		return parseBasic(data)
	case model.LevelComprehensive:
		return parseComprehensive(data)
	default:
		return parseStandard(data)
	}
}

func parseBasic(data map[string]any) *model.ExtractionResult {
	merchant, ok := merchantName(data)
	if !ok {
		return nil
	}
	r := model.NewResult(merchant, stringOr(data, "cashback_offer", notFoundOffer), floatOr(data, "confidence", 0.5), model.MethodInference)
	r.Fields = map[string]any{
		"competitive_threat": stringOr(data, "competitive_threat", "unknown"),
	}
	return r
}

func parseStandard(data map[string]any) *model.ExtractionResult {
	basic := section(data, "basic_info")
	merchant, ok := merchantName(basic)
	if !ok {
		return nil
	}
	intel := section(data, "competitive_intelligence")
	ux := section(data, "user_experience")

	recs := stringList(data["pokitpal_recommendations"])
	if len(recs) > 2 {
		recs = recs[:2]
	}

	r := model.NewResult(merchant, stringOr(basic, "cashback_offer", notFoundOffer), floatOr(data, "confidence", 0.7), model.MethodInference)
	r.Fields = map[string]any{
		"offer_type":                         stringOr(basic, "offer_type", "unknown"),
		"competitive_threat_level":           stringOr(intel, "threat_level", "unknown"),
		"market_position":                    stringOr(intel, "market_position", "unknown"),
		"pokitpal_opportunity":               stringOr(intel, "pokitpal_opportunity", "unknown"),
		"ease_of_use":                        stringOr(ux, "ease_of_use", "unknown"),
		"mobile_optimized":                   ux["mobile_optimized"],
		"pokitpal_strategic_recommendations": recs,
	}
	return r
}

func parseComprehensive(data map[string]any) *model.ExtractionResult {
	basic := section(data, "basic_info")
	merchant, ok := merchantName(basic)
	if !ok {
		return nil
	}
	quality := section(data, "data_quality")
	r := model.NewResult(merchant, stringOr(basic, "cashback_offer", notFoundOffer), floatOr(quality, "extraction_confidence", 0.8), model.MethodInference)
	r.Fields = data
	return r
}

// merchantName applies the "Unknown" default for a missing key and rejects
// an explicit null or blank name.
func merchantName(m map[string]any) (string, bool) {
	v, present := m["merchant_name"]
	if !present {
		return model.UnknownMerchant, true
	}
	s := strings.TrimSpace(stringify(v))
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	return s, true
}

func section(m map[string]any, key string) map[string]any {
	if s, ok := m[key].(map[string]any); ok {
		return s
	}
	return map[string]any{}
}

func stringOr(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	if s := strings.TrimSpace(stringify(v)); s != "" {
		return s
	}
	return def
}

func floatOr(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(stringify(it)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
