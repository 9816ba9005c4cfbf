package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyTaxonomy   = "taxonomy"
	KeyItems      = "items"
	KeySinceMS    = "since_ms"
	KeyMarkerMS   = "marker_ms"
	KeyStatus     = "status"
	KeyAttempt    = "attempt"
	KeyURL        = "url"
	KeyDurationMS = "duration_ms"
	KeyScheduleID = "schedule_id"
	KeyBarcode    = "barcode"
	KeyPath       = "path"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Taxonomy(name string) slog.Attr  { return slog.String(KeyTaxonomy, name) }
func Items(n int) slog.Attr           { return slog.Int(KeyItems, n) }
func SinceMS(ms int64) slog.Attr      { return slog.Int64(KeySinceMS, ms) }
func MarkerMS(ms int64) slog.Attr     { return slog.Int64(KeyMarkerMS, ms) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func ScheduleID(id string) slog.Attr  { return slog.String(KeyScheduleID, id) }
func Barcode(code string) slog.Attr   { return slog.String(KeyBarcode, code) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
