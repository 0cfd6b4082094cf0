package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"tin-report/internal/export"
	"tin-report/internal/filter"
	"tin-report/internal/logging"
	"tin-report/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const indexPage = `<!DOCTYPE html>
<html>
<head>
  <title>TIN Report</title>
</head>
<body>
  <h1>TIN Report</h1>
  <form action="/download" method="post">
    <label for="fe_tin">TIN(s), comma separated:</label>
    <input type="text" id="fe_tin" name="fe_tin" required><br>
    <label for="end_date">End date:</label>
    <input type="date" id="end_date" name="end_date" required><br>
    <label for="start_date">Start date (optional):</label>
    <input type="date" id="start_date" name="start_date"><br>
    <label for="npi">NPI (optional):</label>
    <input type="text" id="npi" name="npi"><br>
    <button type="submit">Download report</button>
  </form>
</body>
</html>
`

// indexHandler serves the report request form.
func indexHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, indexPage)
	})
}

// downloadHandler runs the report pipeline and streams the spreadsheet back
// as a file attachment.
func downloadHandler(service *report.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form data", http.StatusBadRequest)
			return
		}

		raw := filter.RawFilter{
			TIN:       r.FormValue("fe_tin"),
			EndDate:   r.FormValue("end_date"),
			StartDate: r.FormValue("start_date"),
			NPI:       r.FormValue("npi"),
		}

		artifact, err := service.Generate(r.Context(), raw)
		if err != nil {
			writeDownloadError(w, reqLogger, err)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
		w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Content)))
		_, _ = w.Write(artifact.Content)
	})
}

func writeDownloadError(w http.ResponseWriter, logger *logging.Logger, err error) {
	var verr *filter.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, export.ErrNoRows):
		http.Error(w, "No records found.", http.StatusNotFound)
	default:
		logger.Error("report generation failed", slog.String("error", err.Error()))
		// Generic message to avoid leaking warehouse details.
		http.Error(w, "report generation failed", http.StatusInternalServerError)
	}
}
