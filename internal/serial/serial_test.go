package serial

import (
	"bytes"
	"io"
	"testing"
)

// loopback is an in-memory Port: writes are appended to a buffer, reads are
// not exercised by these tests (telemetry parsing is tested separately).
type loopback struct {
	written bytes.Buffer
	r       io.Reader
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.r == nil {
		return 0, io.EOF
	}
	return l.r.Read(p)
}

func (l *loopback) Write(p []byte) (int, error) {
	return l.written.Write(p)
}

func (l *loopback) Close() error { return nil }

// TestSingleSolidRedFrame reproduces a one-channel, two-LED-per-channel
// tick where the animation returns solid red. Expected bytes after one
// tick: FE 00 02 00 FF 00 00 FF 00 00 FD 01.
func TestSingleSolidRedFrame(t *testing.T) {
	lb := &loopback{}
	s := New(lb)
	defer s.Close()

	rgb := []byte{0xFF, 0x00, 0x00, 0xFF, 0x00, 0x00}
	if err := s.UpdateChannel(0, rgb); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(0x01); err != nil {
		t.Fatal(err)
	}

	want := []byte{0xFE, 0x00, 0x02, 0x00, 0xFF, 0x00, 0x00, 0xFF, 0x00, 0x00, 0xFD, 0x01}
	if got := lb.written.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

func TestUpdateChannel_validatesChannel(t *testing.T) {
	s := New(&loopback{})
	defer s.Close()
	if err := s.UpdateChannel(8, make([]byte, 3)); err == nil {
		t.Fatal("expected error for channel >= 8")
	}
}

func TestUpdateChannel_validatesCount(t *testing.T) {
	s := New(&loopback{})
	defer s.Close()
	if err := s.UpdateChannel(0, nil); err == nil {
		t.Fatal("expected error for cnt=0")
	}
	if err := s.UpdateChannel(0, make([]byte, 201*3)); err == nil {
		t.Fatal("expected error for cnt>200")
	}
}

func TestClearAll(t *testing.T) {
	lb := &loopback{}
	s := New(lb)
	defer s.Close()
	if err := s.ClearAll(); err != nil {
		t.Fatal(err)
	}
	if got := lb.written.Bytes(); !bytes.Equal(got, []byte{0xF9}) {
		t.Fatalf("got % x", got)
	}
}

func TestParseStats(t *testing.T) {
	got := parseStats("up=12 cmd=340 pix=9600 fb=03 mode=0")
	want := map[string]string{"up": "12", "cmd": "340", "pix": "9600", "fb": "03", "mode": "0"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %s: got %q want %q", k, got[k], v)
		}
	}
}

func TestHandleLine_infoLineForwarded(t *testing.T) {
	s := &Session{infoLines: make(chan string, 1)}
	s.handleLine("booting up")
	select {
	case line := <-s.infoLines:
		if line != "booting up" {
			t.Fatalf("got %q", line)
		}
	default:
		t.Fatal("expected the info line to be queued")
	}
}

func TestHandleLine_statsUpdatesTelemetry(t *testing.T) {
	s := &Session{infoLines: make(chan string, 1)}
	s.handleLine("STATS up=1 cmd=0")
	tel := s.Telemetry()
	if tel.Values["up"] != "1" {
		t.Fatalf("got %+v", tel)
	}
}
