package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-scouts/incognita-sub000/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "3f2a9c1e-7b44-4d8e-9a61-0c5d2e8f1b70",
			Census:    "/data/census/2021/Scout_Census_with_Postcode_Data.csv",
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{Districts: 412},
			CreatedAt: created,
			UpdatedAt: created.Add(95 * time.Second),
		},
		{ID: "short", Census: "census.csv", Status: model.RunStatusFailed, CreatedAt: created, UpdatedAt: created},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "CENSUS")
	assert.Contains(t, lines[2], "3f2a9c1e")
	assert.NotContains(t, lines[2], "7b44")
	assert.Contains(t, lines[2], "...")
	assert.Contains(t, lines[2], "Postcode_Data.csv")
	assert.Contains(t, lines[2], "412")
	assert.Contains(t, lines[2], "1m35s")
	assert.Contains(t, lines[3], "failed")
	assert.Contains(t, lines[3], " - ")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "3f2a9c1e", truncateID("3f2a9c1e-7b44"))
	assert.Equal(t, "abc", truncateID("abc"))
}

func TestWriteRunsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRunsJSON(&buf, []model.Run{{ID: "r1", Status: model.RunStatusRunning}}))
	assert.Contains(t, buf.String(), `"id": "r1"`)
	assert.Contains(t, buf.String(), `"status": "running"`)
}
