package storage

import (
	"strconv"
	"time"

	"listing-scraper/models"
)

// Row renders a listing as export cells in Columns order. Absent values
// become empty cells.
func Row(l models.CanonicalListing, exportedAt time.Time) []string {
	return []string{
		l.Project,
		models.Deref(l.PropertyType),
		formatFloat(l.Price, 0),
		formatFloat(l.AreaSqft, 2),
		formatRooms(l.Bedrooms),
		formatRooms(l.Bathrooms),
		models.Deref(l.Location),
		models.Deref(l.Developer),
		models.Deref(l.AgentName),
		models.Deref(l.PropertyURL),
		models.Deref(l.Description),
		formatFloat(l.PricePerSqft, 2),
		exportedAt.UTC().Format(time.RFC3339),
	}
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func formatRooms(r *models.RoomCount) string {
	if r == nil {
		return ""
	}
	return r.String()
}
