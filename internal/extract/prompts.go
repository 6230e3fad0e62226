package extract

import (
	"fmt"

	"github.com/sells-group/cashback-intel/internal/model"
)

const competitiveContext = `
CONTEXT: This analysis is for Pokitpal, a cashback/rewards platform. Analyze these competitor cashback merchants to understand:
- How they position their offers vs Pokitpal's potential offerings
- Market gaps Pokitpal could exploit
- Competitive threats and opportunities
- Strategic recommendations for Pokitpal's competitive positioning
`

const basicSchema = `{"merchant_name": "name or null", "cashback_offer": "offer or null", "confidence": 0.9, "competitive_threat": "high|medium|low"}`

const standardSchema = `{"basic_info": {"merchant_name": "name", "cashback_offer": "rate", "offer_type": "percentage|fixed"},
"competitive_intelligence": {"threat_level": "high|medium|low", "market_position": "premium|mid_market|budget", "pokitpal_opportunity": "high|medium|low"},
"user_experience": {"ease_of_use": "excellent|good|average|poor", "mobile_optimized": true|false},
"pokitpal_recommendations": ["competitive_rec1", "competitive_rec2"],
"confidence": 0.9}`

const comprehensiveSchema = `{"basic_info": {"merchant_name": "name", "cashback_offer": "rate", "offer_type": "type"},
"competitive_positioning": {"market_position": "position", "unique_selling_points": ["point1"], "competitive_advantages": ["adv1"], "weaknesses_pokitpal_can_exploit": ["weakness1"]},
"offer_intelligence": {"offer_attractiveness": "level", "offer_complexity": "level", "pokitpal_differentiation_opportunity": "high|medium|low", "special_conditions": ["cond1"], "exclusions": ["excl1"]},
"user_experience": {"ease_of_use": "level", "signup_process": "complexity", "payment_methods": ["method1"], "mobile_optimized": true|false, "pokitpal_ux_advantages": ["advantage1"]},
"strategic_insights": {"threat_to_pokitpal": "level", "partnership_opportunity": "level", "market_share_vulnerability": "level", "customer_acquisition_difficulty": "level"},
"pokitpal_strategic_recommendations": ["detailed_competitive_rec1", "detailed_market_entry_rec2", "detailed_differentiation_rec3"],
"competitive_summary": {"overall_threat_level": "high|medium|low", "pokitpal_response_priority": "urgent|high|medium|low", "recommended_pokitpal_strategy": "compete_directly|differentiate|avoid|partner"},
"data_quality": {"extraction_confidence": 0.9, "data_completeness": 0.8, "analysis_reliability": 0.85}}`

// SystemMessage returns the system prompt for level.
func SystemMessage(level model.Level) string {
	switch level {
	case model.LevelBasic:
		return "You are a competitive intelligence analyst for Pokitpal (a cashback platform). Extract competitor data and assess competitive threats. Return only valid JSON."
	case model.LevelComprehensive:
		return "You are a senior competitive intelligence analyst for Pokitpal, a cashback/rewards platform. Provide detailed competitive analysis to help Pokitpal strategically position against competitors, identify market gaps, and develop winning strategies."
	default:
		return "You are a competitive intelligence analyst for Pokitpal. Analyze competitor cashback platforms to identify threats, opportunities, and strategic recommendations for Pokitpal's competitive advantage."
	}
}

// BuildPrompt returns the user prompt for level over the salient content.
func BuildPrompt(level model.Level, url, content string) string {
	switch level {
	case model.LevelBasic:
		return fmt.Sprintf("%s\nExtract competitor cashback data from this webpage content.\n\nURL: %s\nContent: %s\n\nReturn only JSON:\n%s",
			competitiveContext, url, content, basicSchema)
	case model.LevelComprehensive:
		return fmt.Sprintf("%s\nProvide comprehensive competitive intelligence analysis of this cashback merchant for Pokitpal's strategic advantage.\n\nURL: %s\nContent: %s\n\nReturn detailed competitive analysis JSON:\n%s",
			competitiveContext, url, content, comprehensiveSchema)
	default:
		return fmt.Sprintf("%s\nAnalyze this competitor cashback merchant page for Pokitpal's strategic planning.\n\nURL: %s\nContent: %s\n\nReturn JSON with competitive intelligence:\n%s",
			competitiveContext, url, content, standardSchema)
	}
}
