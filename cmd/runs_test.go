package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plansight/enroll-cli/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.PipelineRun{
		{
			RunID:          "abc12345-6789-0000-0000-000000000000",
			PipelineName:   "monthly_enrollment",
			Status:         model.RunStatusSuccess,
			StartedAt:      started,
			InputFileCount: 5,
			OutputRowCount: 12000,
		},
		{
			RunID:        "def12345-6789-0000-0000-000000000000",
			PipelineName: "monthly_enrollment",
			Status:       model.RunStatusFailed,
			StartedAt:    started.Add(-time.Hour),
			Error:        "pipeline: store facts 2024-02: disk full on the warehouse volume",
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "success")
	assert.Contains(t, output, "2026-03-10 09:15")
	assert.Contains(t, output, "12000")
	assert.Contains(t, output, "failed")
	// Long errors are truncated for the table view.
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "warehouse volume")
}

func TestFormatSourceFiles(t *testing.T) {
	month := 1
	files := []model.SourceFile{
		{
			FileID:      "abc12345-F0001",
			FileType:    "enrollment_plan",
			Year:        2024,
			Month:       &month,
			SizeBytes:   2048,
			ContentHash: "d41d8cd98f00b204e9800998ecf8427e",
			URI:         "raw/enrollment/by_plan/2024-01/Monthly_Report_By_Plan_2024_01.zip",
		},
		{
			FileID:   "abc12345-F0002",
			FileType: "crosswalk",
			Year:     2024,
		},
	}

	var buf bytes.Buffer
	formatSourceFiles(&buf, files)

	output := buf.String()
	assert.Contains(t, output, "abc12345-F0001")
	assert.Contains(t, output, "2024-01")
	assert.Contains(t, output, "d41d8cd9")
	assert.NotContains(t, output, "d41d8cd98f") // hash shortened
	assert.Contains(t, output, "crosswalk")
}

func TestFormatParentOrgs(t *testing.T) {
	identities := []model.ParentOrgIdentity{
		{
			ParentOrgID:    "org-elevance-health",
			CanonicalName:  "Elevance Health, Inc.",
			NameVariations: []string{"Anthem, Inc.", "Elevance Health, Inc."},
			FirstYear:      2019,
			LastYear:       2026,
			ContractCount:  14,
		},
	}

	var buf bytes.Buffer
	formatParentOrgs(&buf, identities)

	output := buf.String()
	assert.Contains(t, output, "org-elevance-health")
	assert.Contains(t, output, "Elevance Health, Inc.")
	assert.Contains(t, output, "2019-2026")
	assert.Contains(t, output, "14")
}
