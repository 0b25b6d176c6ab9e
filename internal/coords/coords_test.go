package coords

import (
	"strings"
	"testing"
)

func TestLoad_normalizes(t *testing.T) {
	data := `# comment
LED_CH0_0 0 0 0
LED_CH0_1 10 0 0
LED_CH0_2 5 5 5
`
	s, err := loadFrom(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("want 3 points, got %d", s.Len())
	}
	p0, ok := s.Coord(0)
	if !ok || p0.X != 0 || p0.Y != 0 || p0.Z != 0 {
		t.Fatalf("id 0: got %+v ok=%v", p0, ok)
	}
	p1, ok := s.Coord(1)
	if !ok || p1.X != 1 {
		t.Fatalf("id 1: got %+v ok=%v", p1, ok)
	}
	for i := 0; i < 3; i++ {
		p, _ := s.Coord(i)
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 || p.Z < 0 || p.Z > 1 {
			t.Fatalf("id %d out of [0,1]^3: %+v", i, p)
		}
	}
}

func TestLoad_degenerateAxisIsHalf(t *testing.T) {
	data := "LED_A_0 3 1 1\nLED_A_1 3 1 9\n"
	s, err := loadFrom(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s.Coord(0)
	if p.X != 0.5 {
		t.Fatalf("degenerate X axis should normalize to 0.5, got %v", p.X)
	}
}

func TestLoad_absentID(t *testing.T) {
	s, err := loadFrom(strings.NewReader("LED_A_0 0 0 0\nLED_A_2 1 1 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Coord(1); ok {
		t.Fatal("id 1 should be absent")
	}
}

func TestLoad_malformedLineSkippedWithoutAffectingOthers(t *testing.T) {
	good := "LED_A_0 0 0 0\nLED_A_1 1 1 1\n"
	s1, err := loadFrom(strings.NewReader(good))
	if err != nil {
		t.Fatal(err)
	}
	withJunk := good + "LED_A_2 not numbers here\n"
	s2, err := loadFrom(strings.NewReader(withJunk))
	if err != nil {
		t.Fatal(err)
	}
	if s1.Len() != s2.Len() {
		t.Fatalf("malformed extra line changed record count: %d vs %d", s1.Len(), s2.Len())
	}
	for id := 0; id < 2; id++ {
		a, _ := s1.Coord(id)
		b, _ := s2.Coord(id)
		if a != b {
			t.Fatalf("id %d differs: %+v vs %+v", id, a, b)
		}
	}
}

func TestLoad_noValidRecordsIsFatal(t *testing.T) {
	if _, err := loadFrom(strings.NewReader("# nothing here\n\n")); err == nil {
		t.Fatal("expected error for zero valid records")
	}
}

func TestLoad_unparseableIDIsFatal(t *testing.T) {
	_, err := loadFrom(strings.NewReader("LED_A_x 0 0 0\nLED_A_0 1 1 1\n"))
	if err == nil {
		t.Fatal("expected an unparseable id to be a fatal error")
	}
}
