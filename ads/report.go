// Package ads is the SDK engine: a typed client for the ads platform's
// reporting API with streaming pagination and uniform failure
// classification. Every transport failure surfaces as an *APIError whose
// Retryable flag is the single signal the sync state machine counts on.
package ads

import (
	"strings"
	"time"

	"github.com/arcline/adsync/errors"
)

// ReportType identifies one fetchable report
type ReportType string

const (
	ReportCampaignDaily    ReportType = "campaign_daily"
	ReportAdGroupAdDaily   ReportType = "ad_group_ad_daily"
	ReportGeographic       ReportType = "geographic"
	ReportKeyword          ReportType = "keyword"
	ReportSearchTerm       ReportType = "search_term"
	ReportAssetGroup       ReportType = "asset_group"
	ReportConversionAction ReportType = "conversion_action"
	ReportChangeEvents     ReportType = "change_events"
	ReportRecommendations  ReportType = "recommendations"
	ReportAccountList      ReportType = "account_list"
)

// AllReportTypes is the fetch order for a full sync. Sequential, no
// ordering dependency between types.
var AllReportTypes = []ReportType{
	ReportCampaignDaily,
	ReportAdGroupAdDaily,
	ReportGeographic,
	ReportKeyword,
	ReportSearchTerm,
	ReportAssetGroup,
	ReportConversionAction,
	ReportChangeEvents,
	ReportRecommendations,
	ReportAccountList,
}

// Valid reports whether rt is a known report type
func (rt ReportType) Valid() bool {
	for _, t := range AllReportTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// Window is the date/time range for a report fetch
type Window struct {
	Start time.Time
	End   time.Time
}

// NormalizeCustomerID strips all non-digit characters from a customer id
// ("123-456-7890" and "123 456 7890" both become "1234567890"). An id with
// no digits at all is rejected.
func NormalizeCustomerID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", errors.Wrapf(errors.ErrInvalidCustomerID, "customer id %q contains no digits", raw)
	}
	return b.String(), nil
}
