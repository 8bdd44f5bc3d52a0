package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"ridecast.dev/transit/model"
	"ridecast.dev/transit/storage"
)

type ShapeCSV struct {
	ID           string  `csv:"shape_id"`
	Lat          float64 `csv:"shape_pt_lat"`
	Lon          float64 `csv:"shape_pt_lon"`
	Sequence     uint32  `csv:"shape_pt_sequence"`
	DistTraveled string  `csv:"shape_dist_traveled"`
}

// ParseShapes loads shapes.txt. Shape points are used only to render
// a trip's polyline in responses; they never participate in routing.
func ParseShapes(writer storage.FeedWriter, data io.Reader) error {
	shapeCsv := []*ShapeCSV{}
	if err := gocsv.Unmarshal(data, &shapeCsv); err != nil {
		return fmt.Errorf("unmarshaling shapes csv: %w", err)
	}

	for _, p := range shapeCsv {
		if p.ID == "" {
			return fmt.Errorf("empty shape_id")
		}

		var dist float64
		var hasDist bool
		if p.DistTraveled != "" {
			if _, err := fmt.Sscanf(p.DistTraveled, "%g", &dist); err != nil {
				return fmt.Errorf("parsing shape_dist_traveled for shape '%s': %w", p.ID, err)
			}
			hasDist = true
		}

		err := writer.WriteShapePoint(model.ShapePoint{
			ShapeID:      p.ID,
			Lat:          p.Lat,
			Lon:          p.Lon,
			Sequence:     p.Sequence,
			DistTraveled: dist,
			HasDist:      hasDist,
		})
		if err != nil {
			return fmt.Errorf("writing shape point: %w", err)
		}
	}

	return nil
}
