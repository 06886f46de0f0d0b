package datalog

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

func entry(plant string, at time.Time, soil float64) *Entry {
	return &Entry{
		TickID:         "tick-" + at.Format("150405"),
		PlantID:        plant,
		TakenAt:        at,
		PlantOrder:     "Alismatales",
		PlantFamily:    "Araceae",
		PlantSubfamily: "Monsteroideae",
		PlantGenus:     "Spathiphylleae",
		Environment:    "indoor",
		SoilMoisture:   ptr(soil),
		Lux:            ptr(250.5),
		Temperature:    ptr(21.0),
		Humidity:       ptr(45.0),
		WasWatered:     ptr(false),
		ML:             ptr(0),
	}
}

func TestEntry_Row(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 5, 0, time.UTC)

	e := entry("peace-lily-1", at, 42)
	assert.Equal(t, []string{
		"Alismatales", "Araceae", "Monsteroideae", "Spathiphylleae",
		"2024-05-01", "09:30:05",
		"42", "250.5", "21", "45", "0", "0",
		"indoor", "peace-lily-1", "tick-093005",
	}, e.Row())
	assert.Len(t, e.Row(), len(Headers))

	e.SoilMoisture = nil
	e.WasWatered = nil
	e.ML = nil
	e.Lux = nil
	row := e.Row()
	assert.Equal(t, "", row[6])
	assert.Equal(t, "", row[7])
	assert.Equal(t, "", row[10])
	assert.Equal(t, "", row[11])

	e.WasWatered = ptr(true)
	assert.Equal(t, "1", e.Row()[10])
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	sink, err := NewCSVSink(dir)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Write(entry("a", at, 40)))
	require.NoError(t, sink.Write(entry("a", at.Add(30*time.Minute), 41)))
	require.NoError(t, sink.Write(entry("b", at, 70)))
	require.NoError(t, sink.Close())

	f, err := os.Open(sink.Path("a"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "40", rows[1][6])
	assert.Equal(t, "09:30:00", rows[2][5])

	// reopening appends without a second header
	sink, err = NewCSVSink(dir)
	require.NoError(t, err)
	require.NoError(t, sink.Write(entry("b", at.Add(time.Hour), 71)))

	f, err = os.Open(sink.Path("b"))
	require.NoError(t, err)
	defer f.Close()
	rows, err = csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "71", rows[2][6])
}

func TestDB(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Latest("a")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, db.Write(entry("a", at.Add(time.Duration(i)*30*time.Minute), float64(40+i))))
	}
	missing := entry("b", at, 0)
	missing.SoilMoisture = nil
	missing.WasWatered = nil
	require.NoError(t, db.Write(missing))

	latest, err := db.Latest("a")
	require.NoError(t, err)
	assert.Equal(t, 43.0, *latest.SoilMoisture)

	list, err := db.List("a", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 43.0, *list[0].SoilMoisture)
	assert.Equal(t, 42.0, *list[1].SoilMoisture)

	since, err := db.Since("a", at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, 42.0, *since[0].SoilMoisture)
	assert.Equal(t, 43.0, *since[1].SoilMoisture)

	b, err := db.Latest("b")
	require.NoError(t, err)
	assert.Nil(t, b.SoilMoisture)
	assert.Nil(t, b.WasWatered)
	assert.Equal(t, 250.5, *b.Lux)
}

func TestDB_MixedZones(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	cest := time.FixedZone("CEST", 2*60*60)
	cet := time.FixedZone("CET", 60*60)
	pkt := time.FixedZone("PKT", 5*60*60)

	noon := entry("a", time.Date(2024, 5, 1, 12, 0, 0, 0, cest), 40)
	require.NoError(t, db.Write(noon))
	assert.NotZero(t, noon.ID)
	assert.Equal(t, cest, noon.TakenAt.Location())

	since, err := db.Since("a", time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, since)

	since, err = db.Since("a", time.Date(2024, 5, 1, 14, 0, 0, 0, pkt))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.True(t, noon.TakenAt.Equal(since[0].TakenAt))

	// across a DST switch the wall clock runs backwards
	before := entry("b", time.Date(2024, 10, 27, 1, 30, 0, 0, cest), 50)
	after := entry("b", time.Date(2024, 10, 27, 1, 0, 0, 0, cet), 51)
	require.NoError(t, db.Write(before))
	require.NoError(t, db.Write(after))

	latest, err := db.Latest("b")
	require.NoError(t, err)
	assert.Equal(t, 51.0, *latest.SoilMoisture)

	list, err := db.List("b", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 51.0, *list[0].SoilMoisture)
	assert.Equal(t, 50.0, *list[1].SoilMoisture)
}

type stubSink struct {
	written int
	err     error
	closed  bool
}

func (s *stubSink) Write(*Entry) error {
	s.written++
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return s.err
}

func TestMultiSink(t *testing.T) {
	csvErr := errors.New("csv failed")
	broken := &stubSink{err: csvErr}
	ok := &stubSink{}
	sink := MultiSink{broken, ok}

	err := sink.Write(entry("a", time.Now(), 1))
	assert.True(t, errors.Is(err, csvErr))
	assert.Equal(t, 1, broken.written)
	assert.Equal(t, 1, ok.written)

	assert.Error(t, sink.Close())
	assert.True(t, broken.closed)
	assert.True(t, ok.closed)

	assert.NoError(t, MultiSink{ok}.Write(entry("a", time.Now(), 1)))
}
