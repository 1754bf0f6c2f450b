package ads

import (
	"strings"

	"github.com/arcline/adsync/errors"
)

// One query template per report type. Daily reports take {start_date} and
// {end_date}; change-events takes {start_datetime} and {end_datetime}
// because the remote filters it on a timestamp column.
var queryTemplates = map[ReportType]string{
	ReportCampaignDaily: `
		SELECT campaign.id, campaign.name, campaign.status, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM campaign
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportAdGroupAdDaily: `
		SELECT ad_group_ad.ad.id, ad_group_ad.ad.name, ad_group.id, campaign.id,
			ad_group_ad.status, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM ad_group_ad
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportGeographic: `
		SELECT geographic_view.country_criterion_id, geographic_view.location_type,
			campaign.id, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM geographic_view
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportKeyword: `
		SELECT ad_group_criterion.criterion_id, ad_group_criterion.keyword.text,
			ad_group_criterion.keyword.match_type, ad_group.id, campaign.id, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM keyword_view
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportSearchTerm: `
		SELECT search_term_view.search_term, search_term_view.status,
			ad_group.id, campaign.id, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM search_term_view
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportAssetGroup: `
		SELECT asset_group.id, asset_group.name, asset_group.status,
			campaign.id, segments.date,
			metrics.impressions, metrics.clicks, metrics.cost_micros,
			metrics.conversions, metrics.conversions_value
		FROM asset_group
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportConversionAction: `
		SELECT conversion_action.id, conversion_action.name, conversion_action.type,
			conversion_action.status, segments.date,
			metrics.conversions, metrics.conversions_value
		FROM conversion_action
		WHERE segments.date BETWEEN '{start_date}' AND '{end_date}'`,

	ReportChangeEvents: `
		SELECT change_event.resource_name, change_event.change_date_time,
			change_event.change_resource_type, change_event.resource_change_operation,
			change_event.user_email
		FROM change_event
		WHERE change_event.change_date_time BETWEEN '{start_datetime}' AND '{end_datetime}'
		LIMIT 10000`,

	ReportRecommendations: `
		SELECT recommendation.resource_name, recommendation.type,
			recommendation.dismissed, campaign.id
		FROM recommendation`,

	ReportAccountList: `
		SELECT customer_client.id, customer_client.descriptive_name,
			customer_client.level, customer_client.manager, customer_client.status
		FROM customer_client
		WHERE customer_client.level <= 1`,
}

const (
	dateFormat     = "2006-01-02"
	dateTimeFormat = "2006-01-02 15:04:05"
)

// RenderQuery fills a report type's query template for the given window.
// Templates without window placeholders (recommendations, account-list)
// render unchanged.
func RenderQuery(rt ReportType, w Window) (string, error) {
	tmpl, ok := queryTemplates[rt]
	if !ok {
		return "", errors.Newf("no query template for report type %q", rt)
	}

	r := strings.NewReplacer(
		"{start_date}", w.Start.Format(dateFormat),
		"{end_date}", w.End.Format(dateFormat),
		"{start_datetime}", w.Start.Format(dateTimeFormat),
		"{end_datetime}", w.End.Format(dateTimeFormat),
	)
	return r.Replace(tmpl), nil
}
