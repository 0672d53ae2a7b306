package storage

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-scraper/models"
)

func sampleListings() []models.CanonicalListing {
	price, area, ppsf := 1900000.0, 753.0, 1900000.0/753
	beds := models.Studio
	return []models.CanonicalListing{
		{
			Project:      "Damac Safa Two",
			PropertyType: models.Str("Apartment"),
			Price:        &price,
			AreaSqft:     &area,
			Bedrooms:     &beds,
			Location:     models.Str("Business Bay, Dubai"),
			AgentName:    models.Str("Jane, Broker"),
			PropertyURL:  models.Str("https://www.propertyfinder.ae/en/plp/1.html"),
			PricePerSqft: &ppsf,
		},
		{Project: "Damac Safa Two"},
	}
}

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRowRendersAbsentAsEmpty(t *testing.T) {
	rows := sampleListings()

	full := Row(rows[0], fixedTime)
	require.Len(t, full, len(Columns))
	assert.Equal(t, "1900000", full[2])
	assert.Equal(t, "753.00", full[3])
	assert.Equal(t, "studio", full[4])
	assert.Equal(t, "", full[5])
	assert.Equal(t, "2523.24", full[11])
	assert.Equal(t, "2024-05-01T12:00:00Z", full[12])

	empty := Row(rows[1], fixedTime)
	for i, cell := range empty[1:12] {
		assert.Empty(t, cell, "column %s", Columns[i+1])
	}
}

func TestCSVStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVStream(&buf)
	require.NoError(t, err)
	w.now = func() time.Time { return fixedTime }

	require.NoError(t, w.Write(sampleListings()))
	require.NoError(t, w.Close())

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "Jane, Broker", records[1][8])
	assert.Equal(t, "Damac Safa Two", records[2][0])
}

func TestCSVWriterCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")

	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleListings()[:1]))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "project,property_type,price"))
}

func TestInsertBatchPlaceholders(t *testing.T) {
	query, args := insertBatch(sampleListings(), fixedTime)

	assert.Len(t, args, 2*len(Columns))
	assert.Contains(t, query, "INSERT INTO listing_exports (project, property_type")
	assert.Contains(t, query, "($14,$15,")
	assert.Contains(t, query, "$26)")
	assert.Equal(t, "studio", args[4])
	assert.Nil(t, args[len(Columns)+4])
	assert.NotContains(t, query, "ON CONFLICT")
}
