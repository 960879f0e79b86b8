// Package domain defines the waitlist Record written to the spreadsheet store
// and the GORM models backing the SQLite side tables (idempotency keys and the
// geolocation cache).
package domain

// Unknown is the sentinel written for client address and location fields
// that could not be resolved.
const Unknown = "Unknown"

// Column describes one column of the spreadsheet store.
//
// Fields:
//   - Key: stable identifier used in code and JSON.
//   - Header: text written to the header row; used to match columns when an
//     existing file is read back.
//   - Width: display width applied when the sheet is written.
type Column struct {
	Key    string
	Header string
	Width  float64
}

// Columns is the fixed column set of the store, in file order. Every row,
// old and new, is re-emitted with exactly these columns on each append.
var Columns = []Column{
	{Key: "email", Header: "Email", Width: 30},
	{Key: "whatsapp", Header: "WhatsApp", Width: 20},
	{Key: "businessType", Header: "Business Type", Width: 25},
	{Key: "challenge", Header: "Challenge", Width: 40},
	{Key: "timestamp", Header: "Timestamp", Width: 30},
	{Key: "ip", Header: "IP", Width: 18},
	{Key: "city", Header: "City", Width: 20},
	{Key: "region", Header: "Region", Width: 20},
	{Key: "country", Header: "Country", Width: 15},
}

// Record is one waitlist submission plus the metadata derived for it at
// write time.
//
// Timestamp is rendered server-side in the configured zone; it is never taken
// from the client. IP, City, Region and Country fall back to Unknown.
type Record struct {
	Email        string `json:"email"`
	WhatsApp     string `json:"whatsapp"`
	BusinessType string `json:"businessType"`
	Challenge    string `json:"challenge"`
	Timestamp    string `json:"timestamp"`
	IP           string `json:"ip"`
	City         string `json:"city"`
	Region       string `json:"region"`
	Country      string `json:"country"`
}

// Values returns the record's cells in Columns order.
func (r Record) Values() []string {
	return []string{
		r.Email,
		r.WhatsApp,
		r.BusinessType,
		r.Challenge,
		r.Timestamp,
		r.IP,
		r.City,
		r.Region,
		r.Country,
	}
}

// RecordFromValues builds a Record from cells in Columns order. Missing
// trailing cells are left empty; extra cells are ignored.
func RecordFromValues(vals []string) Record {
	at := func(i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}
	return Record{
		Email:        at(0),
		WhatsApp:     at(1),
		BusinessType: at(2),
		Challenge:    at(3),
		Timestamp:    at(4),
		IP:           at(5),
		City:         at(6),
		Region:       at(7),
		Country:      at(8),
	}
}

// Headers returns the header row text in Columns order.
func Headers() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Header
	}
	return out
}
