// Package coords implements the LED Coordinate Store (C1): a sparse,
// immutable mapping from LED index to a normalized 3D position, built once
// at startup from a text file of raw calibration coordinates.
package coords

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
)

// Point is a normalized LED position, each component in [0,1].
type Point struct {
	X, Y, Z float64
}

// Store is the read-only, post-normalization coordinate table. The zero
// value is not usable; construct with Load.
type Store struct {
	points map[int]Point
}

// Coord looks up the normalized position of an LED id. The second return
// value is false if id has no coordinate, which the Render Engine treats as
// a directive to render black without invoking the animation.
func (s *Store) Coord(id int) (Point, bool) {
	p, ok := s.points[id]
	return p, ok
}

// Len reports how many LEDs have a known coordinate.
func (s *Store) Len() int {
	return len(s.points)
}

type record struct {
	id      int
	x, y, z float64
}

// errBadID marks a parseLine failure as an unparseable id rather than some
// other malformed field. Unlike other malformed records (tolerated and
// skipped), a bad id in an otherwise LED_-shaped line is fatal at startup.
var errBadID = errors.New("unparseable id")

// Load parses the coordinate file at path and normalizes it: min-max per
// axis, with degenerate (zero-extent) axes mapped to the constant 0.5. A
// missing file, zero valid records, or an unparseable id is fatal (returned
// as an error; the caller is expected to treat it as a startup failure).
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("coords: %w", err)
	}
	defer f.Close()
	return loadFrom(f)
}

func loadFrom(r io.Reader) (*Store, error) {
	var records []record
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "LED_") {
			log.Printf("coords: line %d: ignoring non-LED_ line %q", lineNo, line)
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			if errors.Is(err, errBadID) {
				return nil, fmt.Errorf("coords: line %d: %w", lineNo, err)
			}
			log.Printf("coords: line %d: %v, skipping", lineNo, err)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("coords: reading: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("coords: no valid LED_ records found")
	}
	return normalize(records), nil
}

// parseLine parses "LED_<anything>_<id> <x> <y> <z>". Only the integer
// after the last underscore in the first field is the LED id; everything
// else in that prefix (channel info consumed by external tools) is ignored.
func parseLine(line string) (record, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return record{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	idx := strings.LastIndex(fields[0], "_")
	if idx < 0 || idx == len(fields[0])-1 {
		return record{}, fmt.Errorf("malformed id field %q", fields[0])
	}
	id, err := strconv.Atoi(fields[0][idx+1:])
	if err != nil {
		return record{}, fmt.Errorf("%w in %q: %v", errBadID, fields[0], err)
	}
	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return record{}, fmt.Errorf("bad x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return record{}, fmt.Errorf("bad y: %w", err)
	}
	z, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return record{}, fmt.Errorf("bad z: %w", err)
	}
	return record{id: id, x: x, y: y, z: z}, nil
}

func normalize(records []record) *Store {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for _, r := range records {
		minX, maxX = math.Min(minX, r.x), math.Max(maxX, r.x)
		minY, maxY = math.Min(minY, r.y), math.Max(maxY, r.y)
		minZ, maxZ = math.Min(minZ, r.z), math.Max(maxZ, r.z)
	}
	axis := func(v, lo, hi float64) float64 {
		if hi == lo {
			return 0.5
		}
		return (v - lo) / (hi - lo)
	}
	points := make(map[int]Point, len(records))
	for _, r := range records {
		points[r.id] = Point{
			X: axis(r.x, minX, maxX),
			Y: axis(r.y, minY, maxY),
			Z: axis(r.z, minZ, maxZ),
		}
	}
	return &Store{points: points}
}
