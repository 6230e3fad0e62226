package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/cashback-intel/internal/model"
)

const listSep = "; "

var basicColumns = []string{
	"merchant", "cashback_offer", "competitive_threat",
	"confidence", "method", "tokens_used", "cost", "url", "scraped_at",
}

var standardColumns = []string{
	"merchant", "cashback_offer", "offer_type", "competitive_threat_level", "market_position", "pokitpal_opportunity",
	"ease_of_use", "mobile_optimized", "pokitpal_strategic_recommendations",
	"confidence", "method", "tokens_used", "cost", "url", "scraped_at",
}

var comprehensiveColumns = []string{
	"merchant_name", "cashback_offer", "offer_type",
	"market_position", "unique_selling_points", "competitive_advantages", "weaknesses_pokitpal_can_exploit",
	"offer_attractiveness", "offer_complexity", "pokitpal_differentiation_opportunity",
	"special_conditions", "exclusions",
	"ease_of_use", "signup_process", "payment_methods", "mobile_optimized", "pokitpal_ux_advantages",
	"threat_to_pokitpal", "partnership_opportunity", "market_share_vulnerability", "customer_acquisition_difficulty",
	"pokitpal_recommendation_1", "pokitpal_recommendation_2", "pokitpal_recommendation_3",
	"overall_threat_level", "pokitpal_response_priority", "recommended_pokitpal_strategy",
	"extraction_confidence", "data_completeness", "analysis_reliability",
	"tokens_used", "cost", "url", "scraped_at",
}

// Columns returns the ordered tabular columns for level.
func Columns(level model.Level) []string {
	var cols []string
	switch level {
	case model.LevelBasic:
		cols = basicColumns
	case model.LevelComprehensive:
		cols = comprehensiveColumns
	default:
		cols = standardColumns
	}
	return append([]string(nil), cols...)
}

// Row flattens r into values aligned with Columns(level).
func Row(level model.Level, r *model.ExtractionResult) []string {
	m := Flatten(level, r)
	cols := Columns(level)
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = m[c]
	}
	return row
}

// Flatten maps r onto the column names of level.
func Flatten(level model.Level, r *model.ExtractionResult) map[string]string {
	f := r.Fields
	out := map[string]string{
		"tokens_used": strconv.FormatInt(r.TokensUsed, 10),
		"cost":        formatFloat(r.Cost),
		"url":         r.URL,
		"scraped_at":  r.ScrapedAt.UTC().Format(time.RFC3339),
	}

	switch level {
	case model.LevelBasic:
		out["merchant"] = r.Merchant
		out["cashback_offer"] = r.Offer
		out["competitive_threat"] = str(f["competitive_threat"])
		out["confidence"] = formatFloat(r.Confidence)
		out["method"] = r.Method

	case model.LevelComprehensive:
		basic := sub(f, "basic_info")
		pos := sub(f, "competitive_positioning")
		offer := sub(f, "offer_intelligence")
		ux := sub(f, "user_experience")
		strategic := sub(f, "strategic_insights")
		summary := sub(f, "competitive_summary")
		quality := sub(f, "data_quality")
		recs := list(f["pokitpal_strategic_recommendations"])

		out["merchant_name"] = orDefault(str(basic["merchant_name"]), r.Merchant)
		out["cashback_offer"] = orDefault(str(basic["cashback_offer"]), r.Offer)
		out["offer_type"] = str(basic["offer_type"])

		out["market_position"] = str(pos["market_position"])
		out["unique_selling_points"] = joined(pos["unique_selling_points"])
		out["competitive_advantages"] = joined(pos["competitive_advantages"])
		out["weaknesses_pokitpal_can_exploit"] = joined(pos["weaknesses_pokitpal_can_exploit"])

		out["offer_attractiveness"] = str(offer["offer_attractiveness"])
		out["offer_complexity"] = str(offer["offer_complexity"])
		out["pokitpal_differentiation_opportunity"] = str(offer["pokitpal_differentiation_opportunity"])
		out["special_conditions"] = joined(offer["special_conditions"])
		out["exclusions"] = joined(offer["exclusions"])

		out["ease_of_use"] = str(ux["ease_of_use"])
		out["signup_process"] = str(ux["signup_process"])
		out["payment_methods"] = joined(ux["payment_methods"])
		out["mobile_optimized"] = str(ux["mobile_optimized"])
		out["pokitpal_ux_advantages"] = joined(ux["pokitpal_ux_advantages"])

		out["threat_to_pokitpal"] = str(strategic["threat_to_pokitpal"])
		out["partnership_opportunity"] = str(strategic["partnership_opportunity"])
		out["market_share_vulnerability"] = str(strategic["market_share_vulnerability"])
		out["customer_acquisition_difficulty"] = str(strategic["customer_acquisition_difficulty"])

		for i := range 3 {
			key := fmt.Sprintf("pokitpal_recommendation_%d", i+1)
			out[key] = ""
			if i < len(recs) {
				out[key] = recs[i]
			}
		}

		out["overall_threat_level"] = str(summary["overall_threat_level"])
		out["pokitpal_response_priority"] = str(summary["pokitpal_response_priority"])
		out["recommended_pokitpal_strategy"] = str(summary["recommended_pokitpal_strategy"])

		out["extraction_confidence"] = str(quality["extraction_confidence"])
		// Inference results carry confidence only through data_quality.
		if out["extraction_confidence"] == "" && r.Method != model.MethodInference {
			out["extraction_confidence"] = formatFloat(r.Confidence)
		}
		out["data_completeness"] = str(quality["data_completeness"])
		out["analysis_reliability"] = str(quality["analysis_reliability"])

	default:
		out["merchant"] = r.Merchant
		out["cashback_offer"] = r.Offer
		out["offer_type"] = str(f["offer_type"])
		out["competitive_threat_level"] = str(f["competitive_threat_level"])
		out["market_position"] = str(f["market_position"])
		out["pokitpal_opportunity"] = str(f["pokitpal_opportunity"])
		out["ease_of_use"] = str(f["ease_of_use"])
		out["mobile_optimized"] = str(f["mobile_optimized"])
		out["pokitpal_strategic_recommendations"] = joined(f["pokitpal_strategic_recommendations"])
		out["confidence"] = formatFloat(r.Confidence)
		out["method"] = r.Method
	}
	return out
}

// Record returns the JSON form of r. Comprehensive records keep the full
// nested analysis; other levels use the flattened columns.
func Record(level model.Level, r *model.ExtractionResult) map[string]any {
	if level != model.LevelComprehensive {
		rec := make(map[string]any)
		for k, v := range Flatten(level, r) {
			rec[k] = v
		}
		rec["confidence"] = r.Confidence
		rec["tokens_used"] = r.TokensUsed
		rec["cost"] = r.Cost
		if recs := list(r.Fields["pokitpal_strategic_recommendations"]); level == model.LevelStandard && recs != nil {
			rec["pokitpal_strategic_recommendations"] = recs
		}
		return rec
	}

	rec := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		rec[k] = v
	}
	if _, ok := rec["basic_info"]; !ok {
		rec["basic_info"] = map[string]any{"merchant_name": r.Merchant, "cashback_offer": r.Offer}
	}
	if _, ok := rec["extraction_metadata"]; !ok {
		rec["extraction_metadata"] = map[string]any{
			"method":             r.Method,
			"tokens_used":        r.TokensUsed,
			"cost":               r.Cost,
			"url":                r.URL,
			"scraped_at":         r.ScrapedAt.UTC().Format(time.RFC3339),
			"intelligence_level": string(level),
		}
	}
	return rec
}

func sub(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func list(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s := str(it); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t != "" {
			return []string{t}
		}
	}
	return nil
}

func joined(v any) string {
	return strings.Join(list(v), listSep)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
