// Package rainfall holds the wire types shared by the dashboard core and the
// reference server.
package rainfall

import "strconv"

// RecordID identifies a stored measurement. The zero value means "no record".
type RecordID int64

// Valid reports whether the identifier refers to a record.
func (id RecordID) Valid() bool {
	return id > 0
}

func (id RecordID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseRecordID parses a path segment into a RecordID.
func ParseRecordID(raw string) (RecordID, bool) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return RecordID(value), true
}

// Record is one yearly rainfall measurement in millimetres.
type Record struct {
	ID     RecordID `json:"id"`
	Year   int      `json:"year"`
	Amount float64  `json:"amount"`
}

// Input is the body of create and update requests.
type Input struct {
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
}

// Summary is the server-computed analytics over the whole collection.
type Summary struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
}

// ExportFilename is the name the CSV export is saved under.
const ExportFilename = "rainfall_data.csv"
