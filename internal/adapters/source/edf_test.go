package source_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/bci/internal/adapters/source"
)

// writeRecording stores two signals of 4 samples per record for 2 records:
// signal 0 counts up from 0 and signal 1 counts down from 0.
func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	signal := func(label string) edf.SignalHeader {
		return edf.SignalHeader{
			Label:             label,
			PhysicalDimension: "uV",
			PhysicalMin:       -2048,
			PhysicalMax:       2047,
			DigitalMin:        -2048,
			DigitalMax:        2047,
			SamplesPerRecord:  4,
		}
	}
	w, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		PatientID:          "X",
		RecordingID:        "bci",
		StartTime:          time.Now(),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals:            []edf.SignalHeader{signal("Fz"), signal("Cz")},
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord([][]float64{{0, 1, 2, 3}, {0, -1, -2, -3}}))
	require.NoError(t, w.WriteRecord([][]float64{{4, 5, 6, 7}, {-4, -5, -6, -7}}))
	require.NoError(t, w.Close())
	return path
}

func TestEDFReplay(t *testing.T) {
	path := writeRecording(t)
	ctx := context.Background()

	t.Run("selected signals in order then EOF", func(t *testing.T) {
		r, err := source.OpenEDF(path, []int{1, 0}, false)
		require.NoError(t, err)
		defer r.Close()

		for i := 0; i < 8; i++ {
			v, err := r.ReadSample(ctx)
			require.NoError(t, err)
			assert.InDelta(t, -float64(i), v[0], 1e-6)
			assert.InDelta(t, float64(i), v[1], 1e-6)
		}
		_, err = r.ReadSample(ctx)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("looping starts over", func(t *testing.T) {
		r, err := source.OpenEDF(path, []int{0}, true)
		require.NoError(t, err)
		defer r.Close()

		var got []float64
		for i := 0; i < 10; i++ {
			v, err := r.ReadSample(ctx)
			require.NoError(t, err)
			got = append(got, v[0])
		}
		assert.InDeltaSlice(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 0, 1}, got, 1e-6)
	})

	t.Run("bad channel selection", func(t *testing.T) {
		_, err := source.OpenEDF(path, []int{5}, false)
		assert.Error(t, err)
		_, err = source.OpenEDF(path, nil, false)
		assert.ErrorIs(t, err, source.ErrNoChannels)
		_, err = source.OpenEDF(filepath.Join(t.TempDir(), "missing.edf"), []int{0}, false)
		assert.Error(t, err)
	})
}
