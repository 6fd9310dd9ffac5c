package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/savegress/aquasense/pkg/models"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

var exportHeader = []string{"id", "timestamp", "temperature", "ph", "tdsLevel", "createdAt"}

// exportData streams the time-range query result as a downloadable file.
// An inverted range exports an empty dataset, same as the range endpoint.
func (s *Server) exportData(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := ExportFormat(r.URL.Query().Get("format"))
	if format != FormatJSON {
		format = FormatCSV
	}

	readings := s.store.GetReadingsByTimeRange(r.Context(), start, end)

	filename := fmt.Sprintf("aquasense_readings_%s_%s",
		start.Format("20060102"),
		end.Format("20060102"))

	if format == FormatJSON {
		writeJSONExport(w, filename, readings)
		return
	}
	writeCSVExport(w, filename, readings)
}

func writeCSVExport(w http.ResponseWriter, filename string, readings []models.Reading) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write(exportHeader)
	for _, reading := range readings {
		writer.Write([]string{
			reading.ID,
			reading.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(reading.Temperature, 'f', -1, 64),
			strconv.FormatFloat(reading.PH, 'f', -1, 64),
			strconv.FormatFloat(reading.TDSLevel, 'f', -1, 64),
			reading.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
}

func writeJSONExport(w http.ResponseWriter, filename string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", filename))

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(data)
}
