package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecast.dev/transit/model"
	"ridecast.dev/transit/storage"
)

func TestParseTransfers(t *testing.T) {
	for _, tc := range []struct {
		name      string
		content   string
		stops     map[string]bool
		err       bool
		transfers []model.Transfer
	}{
		{
			"minimum time transfer",
			`
from_stop_id,to_stop_id,transfer_type,min_transfer_time
a,b,2,90`,
			map[string]bool{"a": true, "b": true},
			false,
			[]model.Transfer{{FromStopID: "a", ToStopID: "b", MinTransferSecs: 90}},
		},

		{
			"recommended transfer has no duration",
			`
from_stop_id,to_stop_id,transfer_type
a,b,0`,
			map[string]bool{"a": true, "b": true},
			false,
			[]model.Transfer{{FromStopID: "a", ToStopID: "b", MinTransferSecs: 0}},
		},

		{
			"unknown stop",
			`
from_stop_id,to_stop_id,transfer_type,min_transfer_time
a,c,2,90`,
			map[string]bool{"a": true, "b": true},
			true,
			nil,
		},

		{
			"type 2 without min_transfer_time",
			`
from_stop_id,to_stop_id,transfer_type
a,b,2`,
			map[string]bool{"a": true, "b": true},
			true,
			nil,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			err = ParseTransfers(writer, bytes.NewBufferString(tc.content), tc.stops)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			transfers, err := reader.Transfers()
			require.NoError(t, err)
			assert.Equal(t, tc.transfers, transfers)
		})
	}
}
