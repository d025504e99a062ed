package torm

import (
	"fmt"
	"time"
)

// SchemaVersion identifies one schema migration by branch, date and a
// sequence number within the day
type SchemaVersion struct {
	Branch   int    `json:"branch"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Sequence int    `json:"sequence"` // 同一天内的序号，0-9999
	Author   string `json:"author,omitempty"`
}

// NewSchemaVersion creates a schema version for a branch and date
func NewSchemaVersion(branch int, date time.Time, sequence int, author string) SchemaVersion {
	return SchemaVersion{
		Branch:   branch,
		Year:     date.Year(),
		Month:    int(date.Month()),
		Day:      date.Day(),
		Sequence: sequence,
		Author:   author,
	}
}

// Key packs the version into a single ordered integer:
// branch*10^12 + year*10^8 + month*10^6 + day*10^4 + sequence
func (v SchemaVersion) Key() int64 {
	return int64(v.Branch)*1_000_000_000_000 +
		int64(v.Year)*100_000_000 +
		int64(v.Month)*1_000_000 +
		int64(v.Day)*10_000 +
		int64(v.Sequence)
}

// ParseSchemaVersionKey unpacks a packed version key
func ParseSchemaVersionKey(key int64) (SchemaVersion, error) {
	if key < 0 {
		return SchemaVersion{}, fmt.Errorf("%w: negative schema version key %d", ErrInvalidConfiguration, key)
	}
	v := SchemaVersion{
		Branch:   int(key / 1_000_000_000_000),
		Year:     int(key / 100_000_000 % 10_000),
		Month:    int(key / 1_000_000 % 100),
		Day:      int(key / 10_000 % 100),
		Sequence: int(key % 10_000),
	}
	if v.Month < 1 || v.Month > 12 || v.Day < 1 || v.Day > 31 {
		return SchemaVersion{}, fmt.Errorf("%w: schema version key %d encodes date %04d-%02d-%02d",
			ErrInvalidConfiguration, key, v.Year, v.Month, v.Day)
	}
	return v, nil
}

// Compare orders two schema versions by packed key
func (v SchemaVersion) Compare(other SchemaVersion) int {
	a, b := v.Key(), other.Key()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the version in branch/date/sequence form
func (v SchemaVersion) String() string {
	s := fmt.Sprintf("%d.%04d%02d%02d.%d", v.Branch, v.Year, v.Month, v.Day, v.Sequence)
	if v.Author != "" {
		s += " (" + v.Author + ")"
	}
	return s
}
