package ads

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arcline/adsync/errors"
)

// Row is one parsed report row. Metric fields are defensive: values the
// remote sends malformed parse to zero. EntityID and Date are required
// and fail the row when absent.
type Row struct {
	ReportType       ReportType
	EntityID         string
	Date             time.Time
	Impressions      int64
	Clicks           int64
	CostMicros       int64
	Conversions      float64
	ConversionsValue float64
	Attrs            map[string]string
	RequestID        string
}

// rowSpec describes where a report type's identifier, date, and
// report-specific attributes live inside a result object.
type rowSpec struct {
	entityPath string
	datePath   string // empty = snapshot report, dated by the window end
	dateLayout string
	attrPaths  []string
}

var rowSpecs = map[ReportType]rowSpec{
	ReportCampaignDaily: {
		entityPath: "campaign.id",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"campaign.name", "campaign.status"},
	},
	ReportAdGroupAdDaily: {
		entityPath: "adGroupAd.ad.id",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"adGroupAd.ad.name", "adGroupAd.status", "adGroup.id", "campaign.id"},
	},
	ReportGeographic: {
		entityPath: "geographicView.countryCriterionId",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"geographicView.locationType", "campaign.id"},
	},
	ReportKeyword: {
		entityPath: "adGroupCriterion.criterionId",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"adGroupCriterion.keyword.text", "adGroupCriterion.keyword.matchType", "adGroup.id", "campaign.id"},
	},
	ReportSearchTerm: {
		entityPath: "searchTermView.searchTerm",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"searchTermView.status", "adGroup.id", "campaign.id"},
	},
	ReportAssetGroup: {
		entityPath: "assetGroup.id",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"assetGroup.name", "assetGroup.status", "campaign.id"},
	},
	ReportConversionAction: {
		entityPath: "conversionAction.id",
		datePath:   "segments.date",
		dateLayout: dateFormat,
		attrPaths:  []string{"conversionAction.name", "conversionAction.type", "conversionAction.status"},
	},
	ReportChangeEvents: {
		entityPath: "changeEvent.resourceName",
		datePath:   "changeEvent.changeDateTime",
		dateLayout: dateTimeFormat,
		attrPaths:  []string{"changeEvent.changeResourceType", "changeEvent.resourceChangeOperation", "changeEvent.userEmail"},
	},
	ReportRecommendations: {
		entityPath: "recommendation.resourceName",
		attrPaths:  []string{"recommendation.type", "recommendation.dismissed", "campaign.id"},
	},
	ReportAccountList: {
		entityPath: "customerClient.id",
		attrPaths:  []string{"customerClient.descriptiveName", "customerClient.level", "customerClient.manager", "customerClient.status"},
	},
}

// parseRow converts one raw result object into a Row. requestID is the
// page-level server request id the row came from.
func parseRow(rt ReportType, result map[string]interface{}, requestID string, w Window) (Row, error) {
	spec, ok := rowSpecs[rt]
	if !ok {
		return Row{}, errors.Newf("no row spec for report type %q", rt)
	}

	entityID := asString(lookup(result, spec.entityPath))
	if entityID == "" {
		return Row{}, errors.Newf("report %s row missing required field %s", rt, spec.entityPath)
	}

	row := Row{
		ReportType:       rt,
		EntityID:         entityID,
		Impressions:      asInt64(lookup(result, "metrics.impressions")),
		Clicks:           asInt64(lookup(result, "metrics.clicks")),
		CostMicros:       asInt64(lookup(result, "metrics.costMicros")),
		Conversions:      asFloat64(lookup(result, "metrics.conversions")),
		ConversionsValue: asFloat64(lookup(result, "metrics.conversionsValue")),
		Attrs:            make(map[string]string),
		RequestID:        requestID,
	}

	if spec.datePath != "" {
		raw := asString(lookup(result, spec.datePath))
		if raw == "" {
			return Row{}, errors.Newf("report %s row missing required date field %s", rt, spec.datePath)
		}
		date, err := time.Parse(spec.dateLayout, raw)
		if err != nil {
			return Row{}, errors.Wrapf(err, "report %s row has unparsable date %q", rt, raw)
		}
		row.Date = date
	} else {
		// Snapshot reports carry no date of their own
		row.Date = w.End
	}

	for _, path := range spec.attrPaths {
		if v := asString(lookup(result, path)); v != "" {
			row.Attrs[attrKey(path)] = v
		}
	}

	return row, nil
}

// attrKey turns "adGroupAd.ad.name" into "ad_name" style keys: the last
// two path segments, snake_cased.
func attrKey(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return snakeCase(strings.Join(parts, "_"))
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lookup walks a dotted path through nested JSON objects. Returns nil at
// the first missing segment.
func lookup(m map[string]interface{}, path string) interface{} {
	var cur interface{} = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// asString renders a JSON value as a string; nil becomes ""
func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		// JSON numbers: render integers without exponent noise
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// asInt64 parses a JSON value as int64, failing closed to 0
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

// asFloat64 parses a JSON value as float64, failing closed to 0
func asFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
