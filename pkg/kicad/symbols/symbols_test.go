package symbols

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp"
	"github.com/OpenTraceLab/OpenTraceSch/pkg/kicad/sexp/kicadsexp"
)

func loadDevice(t *testing.T) *Library {
	t.Helper()
	lib, err := ParseLibraryFile("testdata/device.kicad_sym", "Device")
	require.NoError(t, err)
	return lib
}

func TestParseLibrary(t *testing.T) {
	lib := loadDevice(t)
	assert.Equal(t, []string{"Device:DualOpAmp", "Device:GND", "Device:R", "Device:R_Small"}, lib.LibIDs())

	r, err := lib.Resolve("Device:R")
	require.NoError(t, err)
	require.Len(t, r.Pins, 2)
	assert.False(t, r.Power)

	pin1, ok := r.Pin("1", 1)
	require.True(t, ok)
	assert.Equal(t, sexp.Position{X: 0, Y: 3.81}, pin1.Position)
	assert.Equal(t, sexp.Angle(270), pin1.Angle)
	assert.Equal(t, 1.27, pin1.Length)
	assert.Equal(t, "passive", pin1.Type)
	assert.Equal(t, 1, pin1.Unit)

	// rectangle body plus pins
	assert.InDelta(t, -1.016, r.Graphics.Min.X, 1e-9)
	assert.InDelta(t, -3.81, r.Graphics.Min.Y, 1e-9)
	assert.InDelta(t, 3.81, r.Graphics.Max.Y, 1e-9)
}

func TestExtendsInheritsPins(t *testing.T) {
	lib := loadDevice(t)
	small, err := lib.Resolve("Device:R_Small")
	require.NoError(t, err)
	assert.Len(t, small.Pins, 2)
	assert.Equal(t, "Device:R_Small", small.LibID)
}

func TestPowerSymbol(t *testing.T) {
	lib := loadDevice(t)
	gnd, err := lib.Resolve("Device:GND")
	require.NoError(t, err)
	assert.True(t, gnd.Power)
	require.Len(t, gnd.Pins, 1)
	assert.True(t, gnd.Pins[0].Hidden)
	assert.Equal(t, "power_in", gnd.Pins[0].Type)
}

func TestMultiUnitSymbol(t *testing.T) {
	lib := loadDevice(t)
	amp, err := lib.Resolve("Device:DualOpAmp")
	require.NoError(t, err)

	// De Morgan body style is skipped
	assert.Len(t, amp.Pins, 8)
	assert.Equal(t, 3, amp.Units)

	_, ok := amp.Pin("7", 1)
	assert.False(t, ok, "pin 7 belongs to unit 2")
	p7, ok := amp.Pin("7", 2)
	require.True(t, ok)
	assert.Equal(t, 2, p7.Unit)

	assert.Len(t, amp.UnitPins(2), 3)
	assert.Len(t, amp.UnitPins(0), 8)

	var numbers []string
	for _, p := range amp.Pins {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, numbers)
}

func TestNotFound(t *testing.T) {
	lib := loadDevice(t)
	_, err := lib.Resolve("Device:C")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Device:C", nf.LibID)
}

func TestParseLibraryRejectsOtherDocuments(t *testing.T) {
	_, err := ParseLibrary(strings.NewReader("(kicad_sch (version 20231120))"), "")
	assert.Error(t, err)
}

func TestEmbeddedLibrary(t *testing.T) {
	doc, err := kicadsexp.ParseString(`(lib_symbols
		(symbol "Device:R" (symbol "R_1_1"
			(pin passive line (at 0 3.81 270) (length 1.27) (name "~") (number "1"))
			(pin passive line (at 0 -3.81 90) (length 1.27) (name "~") (number "2")))))`)
	require.NoError(t, err)
	root, _ := doc.Root()

	lib, err := NewLibrary(root.FindAll("symbol"))
	require.NoError(t, err)
	def, err := lib.Resolve("Device:R")
	require.NoError(t, err)
	assert.Len(t, def.Pins, 2)
}

func TestChain(t *testing.T) {
	lib := loadDevice(t)
	failing := ResolverFunc(func(string) (*Definition, error) { return nil, errors.New("disk on fire") })

	chain := Chain{nil, &Library{defs: map[string]*Definition{}}, lib}
	def, err := chain.Resolve("Device:R")
	require.NoError(t, err)
	assert.Equal(t, "Device:R", def.LibID)

	_, err = chain.Resolve("Device:X")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = Chain{failing, lib}.Resolve("Device:R")
	assert.EqualError(t, err, "disk on fire")
}

func TestCacheSharesFills(t *testing.T) {
	lib := loadDevice(t)
	var calls atomic.Int32
	counting := ResolverFunc(func(libID string) (*Definition, error) {
		calls.Add(1)
		return lib.Resolve(libID)
	})
	cache := NewCache(counting, WithCacheLogger(zaptest.NewLogger(t)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			def, err := cache.Resolve("Device:R")
			assert.NoError(t, err)
			assert.Equal(t, "Device:R", def.LibID)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, cache.Len())

	// misses are cached too
	_, err := cache.Resolve("Device:Nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = cache.Resolve("Device:Nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(2), calls.Load())

	cache.Put(&Definition{LibID: "Device:Nope"})
	_, err = cache.Resolve("Device:Nope")
	assert.NoError(t, err)

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
}
