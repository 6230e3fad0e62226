package output

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
	"github.com/sells-group/cashback-intel/pkg/notion"
)

// Notion database property names.
const (
	propMerchant   = "Merchant"
	propOffer      = "Offer"
	propConfidence = "Confidence"
	propMethod     = "Method"
	propLevel      = "Level"
	propSite       = "Site"
	propThreat     = "Threat"
	propURL        = "URL"
	propLink       = "Link"
)

// Publisher upserts results into a Notion database keyed by page URL.
type Publisher struct {
	client notion.Client
	dbID   string
}

// NewPublisher creates a Publisher writing to dbID.
func NewPublisher(client notion.Client, dbID string) *Publisher {
	return &Publisher{client: client, dbID: dbID}
}

// PublishResult counts the pages touched by Publish.
type PublishResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Publish writes every result. It stops at the first error and returns the
// counts so far.
func (p *Publisher) Publish(ctx context.Context, site string, results []*model.ExtractionResult) (PublishResult, error) {
	var out PublishResult
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		created, err := notion.Upsert(ctx, p.client, p.dbID, propURL, r.URL, Properties(site, r))
		if err != nil {
			return out, eris.Wrapf(err, "output: publish %s", r.URL)
		}
		if created {
			out.Created++
		} else {
			out.Updated++
		}
	}
	zap.L().Info("output: published to notion",
		zap.String("site", site),
		zap.Int("created", out.Created),
		zap.Int("updated", out.Updated),
	)
	return out, nil
}

// Properties maps r onto the Notion database schema.
func Properties(site string, r *model.ExtractionResult) notionapi.Properties {
	props := notionapi.Properties{
		propMerchant:   notion.Title(r.Merchant),
		propOffer:      notion.Text(r.Offer),
		propConfidence: notion.Number(r.Confidence),
		propMethod:     notion.Select(r.Method),
		propSite:       notion.Select(site),
		propURL:        notion.Text(r.URL),
		propLink:       notion.URL(r.URL),
	}
	if r.Level != "" {
		props[propLevel] = notion.Select(string(r.Level))
	}
	if threat := threatLevel(r); threat != "" {
		props[propThreat] = notion.Select(threat)
	}
	return props
}

func threatLevel(r *model.ExtractionResult) string {
	if r.Fields == nil {
		return ""
	}
	for _, key := range []string{"competitive_threat", "competitive_threat_level"} {
		if s := str(r.Fields[key]); s != "" {
			return s
		}
	}
	return str(sub(r.Fields, "competitive_summary")["overall_threat_level"])
}
