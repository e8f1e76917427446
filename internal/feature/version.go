package feature

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"CoinCast/internal/domain/models"
)

// Version derives a content-addressed dataset version from a merged table.
// The digest covers the schema and every row's timestamp, value bits, and
// missing marks, so the same underlying data always yields the same
// version and any change to it yields a different one.
func Version(table *models.FeatureTable) string {
	h := xxhash.New()
	var buf [8]byte

	for _, col := range table.Schema {
		_, _ = h.WriteString(col)
		_, _ = h.Write([]byte{0})
	}
	for _, row := range table.Rows {
		binary.LittleEndian.PutUint64(buf[:], uint64(row.TS.Unix()))
		_, _ = h.Write(buf[:])
		for _, f := range row.Fields {
			if f.Valid {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f.Val))
				_, _ = h.Write(buf[:])
				_, _ = h.Write([]byte{1})
			} else {
				_, _ = h.Write([]byte{0})
			}
		}
	}
	return fmt.Sprintf("ds-%016x", h.Sum64())
}
