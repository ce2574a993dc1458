//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/campaign-engine/internal/model"
)

func TestFormatCampaignsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	campaigns := []model.Campaign{
		{
			ID:       "abc12345-6789-0000-0000-000000000000",
			TenantID: "tenant-1",
			Name:     "Lutterworth plumbers",
			Type:     model.TypeAreaSearch,
			Status:   model.StatusCompleted,
			Counters: model.Counters{
				TargetsFound: 20, LeadsCreated: 17, DuplicatesSkipped: 3, ErrorsCount: 1,
			},
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			TenantID:  "tenant-2",
			Name:      "A campaign with a very long name that gets truncated",
			Type:      model.TypeCustomQuery,
			Status:    model.StatusRunning,
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatCampaignsList(&buf, campaigns)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "Lutterworth plumbers")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "gets truncated")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 30))
	assert.Equal(t, "exactly-ten", truncate("exactly-ten", 11))
	assert.Equal(t, "long st...", truncate("long string here", 10))
}
