package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"ridecast.dev/transit/model"
	"ridecast.dev/transit/storage"
)

type TransferCSV struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	TransferType    int8   `csv:"transfer_type"`
	MinTransferTime int    `csv:"min_transfer_time"`
}

// ParseTransfers loads transfers.txt, the feed's declared stop-to-stop
// footpaths. Only type 2 ("requires a minimum amount of time")
// transfers carry a concrete duration; the others are left for
// repository.Build to fill in with a walked-distance estimate.
func ParseTransfers(writer storage.FeedWriter, data io.Reader, stops map[string]bool) error {
	transferCsv := []*TransferCSV{}
	if err := gocsv.Unmarshal(data, &transferCsv); err != nil {
		return fmt.Errorf("unmarshaling transfers csv: %w", err)
	}

	for _, t := range transferCsv {
		if t.FromStopID == "" || t.ToStopID == "" {
			return fmt.Errorf("transfer missing from_stop_id or to_stop_id")
		}
		if !stops[t.FromStopID] {
			return fmt.Errorf("transfer references unknown from_stop_id '%s'", t.FromStopID)
		}
		if !stops[t.ToStopID] {
			return fmt.Errorf("transfer references unknown to_stop_id '%s'", t.ToStopID)
		}

		secs := 0
		if t.TransferType == 2 {
			if t.MinTransferTime <= 0 {
				return fmt.Errorf("transfer '%s'->'%s' has transfer_type 2 but no min_transfer_time", t.FromStopID, t.ToStopID)
			}
			secs = t.MinTransferTime
		}

		err := writer.WriteTransfer(model.Transfer{
			FromStopID:      t.FromStopID,
			ToStopID:        t.ToStopID,
			MinTransferSecs: secs,
		})
		if err != nil {
			return fmt.Errorf("writing transfer: %w", err)
		}
	}

	return nil
}
