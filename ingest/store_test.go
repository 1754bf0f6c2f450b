package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcline/adsync/ads"
	adsynctest "github.com/arcline/adsync/internal/testing"
	"github.com/arcline/adsync/syncstate"
)

func window() ads.Window {
	return ads.Window{
		Start: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 7, 0, 0, 0, 0, time.UTC),
	}
}

func row(entityID, date string, impressions, clicks int64) ads.Row {
	d, _ := time.Parse("2006-01-02", date)
	return ads.Row{
		ReportType:  ads.ReportCampaignDaily,
		EntityID:    entityID,
		Date:        d,
		Impressions: impressions,
		Clicks:      clicks,
		CostMicros:  impressions * 100,
		Attrs:       map[string]string{"campaign_name": "camp-" + entityID},
		RequestID:   "req-1",
	}
}

func TestReplaceRows(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then aggregate", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		rows := []ads.Row{
			row("1", "2026-04-01", 100, 10),
			row("1", "2026-04-02", 200, 20),
			row("2", "2026-04-01", 50, 5),
		}
		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window(), rows))

		totals, err := store.AggregateTotals(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window())
		require.NoError(t, err)
		assert.Equal(t, int64(3), totals.RowCount)
		assert.Equal(t, int64(350), totals.Impressions)
		assert.Equal(t, int64(35), totals.Clicks)
		assert.Equal(t, int64(35000), totals.CostMicros)
	})

	t.Run("replace clears previous window rows", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window(), []ads.Row{
			row("1", "2026-04-01", 100, 10),
			row("2", "2026-04-01", 100, 10),
		}))
		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window(), []ads.Row{
			row("1", "2026-04-01", 500, 50),
		}))

		totals, err := store.AggregateTotals(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window())
		require.NoError(t, err)
		assert.Equal(t, int64(1), totals.RowCount)
		assert.Equal(t, int64(500), totals.Impressions)
	})

	t.Run("engines are isolated", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window(), []ads.Row{
			row("1", "2026-04-01", 100, 10),
		}))
		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EnginePipeline, window(), []ads.Row{
			row("1", "2026-04-01", 999, 99),
		}))

		sdk, err := store.AggregateTotals(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window())
		require.NoError(t, err)
		pipeline, err := store.AggregateTotals(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EnginePipeline, window())
		require.NoError(t, err)

		assert.Equal(t, int64(100), sdk.Impressions)
		assert.Equal(t, int64(999), pipeline.Impressions)
	})

	t.Run("rows outside the window survive a replace", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		earlier := ads.Window{
			Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, earlier, []ads.Row{
			row("1", "2026-03-03", 77, 7),
		}))
		require.NoError(t, store.ReplaceRows(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, window(), []ads.Row{
			row("1", "2026-04-01", 100, 10),
		}))

		old, err := store.AggregateTotals(ctx, "t1", "a1", ads.ReportCampaignDaily, syncstate.EngineSDK, earlier)
		require.NoError(t, err)
		assert.Equal(t, int64(77), old.Impressions)
	})

	t.Run("empty totals for unseen account", func(t *testing.T) {
		store := NewStore(adsynctest.CreateTestDB(t))

		totals, err := store.AggregateTotals(ctx, "t1", "nobody", ads.ReportCampaignDaily, syncstate.EngineSDK, window())
		require.NoError(t, err)
		assert.Equal(t, int64(0), totals.RowCount)
		assert.Equal(t, int64(0), totals.Impressions)
	})
}

func TestCompare(t *testing.T) {
	t.Run("identical totals pass", func(t *testing.T) {
		a := Totals{Impressions: 1000, Clicks: 100, CostMicros: 5000, Conversions: 10, ConversionsValue: 99.5}
		result := Compare(a, a, 0.01)
		assert.True(t, result.Passed)
		assert.Empty(t, result.Mismatches)
	})

	t.Run("within tolerance passes", func(t *testing.T) {
		sdk := Totals{Impressions: 1000, Clicks: 100}
		pipeline := Totals{Impressions: 1005, Clicks: 100}
		result := Compare(sdk, pipeline, 0.01)
		assert.True(t, result.Passed)
	})

	t.Run("beyond tolerance fails with named mismatches", func(t *testing.T) {
		sdk := Totals{Impressions: 1000, Clicks: 100}
		pipeline := Totals{Impressions: 1500, Clicks: 100}
		result := Compare(sdk, pipeline, 0.01)
		assert.False(t, result.Passed)
		require.Len(t, result.Mismatches, 1)
		assert.Contains(t, result.Mismatches[0], "impressions")
	})

	t.Run("both zero matches", func(t *testing.T) {
		result := Compare(Totals{}, Totals{}, 0)
		assert.True(t, result.Passed)
	})

	t.Run("zero against nonzero fails", func(t *testing.T) {
		result := Compare(Totals{Impressions: 10}, Totals{}, 0.05)
		assert.False(t, result.Passed)
	})
}
