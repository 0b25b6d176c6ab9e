package device

import (
	"testing"
	"time"
)

func feedBytes(d *Decoder, bs ...byte) {
	for _, b := range bs {
		d.Feed(b)
	}
}

func TestSolidRedFrame_updateFlush(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x00, 0x02, 0x00, 0xFF, 0x00, 0x00, 0xFF, 0x00, 0x00)
	frame := d.ActiveFrame(0)
	if len(frame) != 2 {
		t.Fatalf("expected 2 LEDs active, got %d", len(frame))
	}
	for i, px := range frame {
		if px != [3]byte{0xFF, 0x00, 0x00} {
			t.Fatalf("led %d: got %v want red", i, px)
		}
	}
	if d.flushCount != 1 {
		t.Fatalf("expected one flush, got %d", d.flushCount)
	}
}

func TestUpdateOnly_doesNotSwapUntilFlush(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateOnly, 0x00, 0x01, 0x00, 0x10, 0x20, 0x30)
	if len(d.ActiveFrame(0)) != 0 {
		t.Fatalf("active buffer should be untouched before a flush")
	}
	feedBytes(d, cmdFlush, 0x01) // mask bit 0
	frame := d.ActiveFrame(0)
	if len(frame) != 1 || frame[0] != [3]byte{0x10, 0x20, 0x30} {
		t.Fatalf("got %v", frame)
	}
}

func TestGammaCorrection_appliedAtWrite(t *testing.T) {
	d := NewDecoder(2.8, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x00, 0x01, 0x00, 0x80, 0x80, 0x80)
	want := d.gammaLUT[0x80]
	got := d.ActiveFrame(0)[0]
	if got[0] != want || got[1] != want || got[2] != want {
		t.Fatalf("got %v, want gamma-corrected %d in every channel", got, want)
	}
	if want == 0x80 {
		t.Fatalf("gamma 2.8 should not be a no-op at mid-scale")
	}
}

func TestCurrentLimiting_scalesDownOverCap(t *testing.T) {
	d := NewDecoder(1.0, 300, 3.0, 85, 20) // cap well under 2*765
	feedBytes(d, cmdUpdateFlush,
		0x00, 0x02, 0x00,
		0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF,
	)
	frame := d.ActiveFrame(0)
	var sum float64
	for _, px := range frame {
		sum += float64(px[0]) + float64(px[1]) + float64(px[2])
	}
	if sum > 300.5 {
		t.Fatalf("sum %v exceeds cap after limiting", sum)
	}
	if d.channels[0].limitEvents != 1 {
		t.Fatalf("expected one limit event, got %d", d.channels[0].limitEvents)
	}
}

func TestCurrentLimiting_underCapLeftUntouched(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x00, 0x01, 0x00, 0x10, 0x10, 0x10)
	if d.channels[0].limitEvents != 0 {
		t.Fatalf("should not have limited a tiny frame")
	}
}

// TestParserRecoversFromInvalidChannel checks that an out-of-range channel
// byte drops only that one malformed command; the next well-formed command
// must still parse correctly.
func TestParserRecoversFromInvalidChannel(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x09, 0x01, 0x00, 0xFF, 0xFF, 0xFF) // channel 9 is invalid
	if d.ErrorCount() != 1 {
		t.Fatalf("expected one dropped command, got err=%d", d.ErrorCount())
	}
	if d.state != stateWaitCommand {
		t.Fatalf("parser should resynchronize to stateWaitCommand, got %v", d.state)
	}
	feedBytes(d, cmdUpdateFlush, 0x01, 0x01, 0x00, 0x01, 0x02, 0x03)
	frame := d.ActiveFrame(1)
	if len(frame) != 1 || frame[0] != [3]byte{1, 2, 3} {
		t.Fatalf("valid command after a malformed one should still parse, got %v", frame)
	}
}

func TestParserRecoversFromOversizedCount(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x00, 0xC9, 0x00) // count = 201, over the 200 LED limit
	if d.ErrorCount() != 1 {
		t.Fatalf("count of 201 should be rejected, err=%d", d.ErrorCount())
	}
}

func TestSilenceTimeout_entersPatternMode(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	if d.Mode() != 0 {
		t.Fatalf("should start in normal mode")
	}
	d.CheckTimeout(d.lastValidCmd.Add(4 * time.Second))
	if d.Mode() != 0 {
		t.Fatalf("4s of silence should not yet trigger fallback")
	}
	d.CheckTimeout(d.lastValidCmd.Add(5 * time.Second))
	if d.Mode() != 1 {
		t.Fatalf("5s of silence should trigger pattern fallback")
	}
}

func TestValidCommandExitsPatternMode(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	d.CheckTimeout(d.lastValidCmd.Add(10 * time.Second))
	if d.Mode() != 1 {
		t.Fatalf("setup: expected pattern mode")
	}
	feedBytes(d, cmdClearAll)
	if d.Mode() != 0 {
		t.Fatalf("a valid host command should return to normal mode")
	}
}

func TestStartPattern_staysInPatternMode(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdStartPattern, 0x04)
	if d.Mode() != 1 {
		t.Fatalf("StartPattern command should leave the decoder in pattern mode")
	}
}

func TestAdvancePattern_ternaryIsDeterministic(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdStartPattern, 0x04)
	d.AdvancePattern()
	first := d.ActiveFrame(0)
	d2 := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d2, cmdStartPattern, 0x04)
	d2.AdvancePattern()
	second := d2.ActiveFrame(0)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ternary pattern should be deterministic, led %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestChannelFeedback_tripCounting(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	d.UpdateChannelFeedback(0, 0.1) // at or below faultVolt=3.0: disconnected
	if d.tripEvents != 1 {
		t.Fatalf("expected a trip edge, got %d", d.tripEvents)
	}
	d.UpdateChannelFeedback(0, 0.05) // still tripped, should not double-count
	if d.tripEvents != 1 {
		t.Fatalf("trip count should only increment on rising edge, got %d", d.tripEvents)
	}
	d.UpdateChannelFeedback(0, 4.0) // recovers
	d.UpdateChannelFeedback(0, 0.1) // trips again
	if d.tripEvents != 2 {
		t.Fatalf("expected a second trip edge after recovery, got %d", d.tripEvents)
	}
}

func TestFaultHistory_latchesUntilReboot(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	d.UpdateSensors(90, 20, 12, 1) // temp0 over faultTemp=85
	if !d.faultHistory {
		t.Fatalf("expected fault_history to latch")
	}
	d.UpdateSensors(20, 20, 12, 1) // sensors recover
	if !d.faultHistory {
		t.Fatalf("fault_history must not clear on its own")
	}
	if d.faultPresent {
		t.Fatalf("faultPresent should track live state, not the latch")
	}
	d.Reboot()
	if d.faultHistory {
		t.Fatalf("reboot should clear fault_history")
	}
}

func TestStatsLine_hasExpectedKeys(t *testing.T) {
	d := NewDecoder(1.0, 1e9, 3.0, 85, 20)
	feedBytes(d, cmdUpdateFlush, 0x00, 0x01, 0x00, 0x10, 0x20, 0x30)
	line := d.StatsLine()
	for _, key := range []string{"up=", "cmd=", "pix=", "flush=", "err=", "t0=", "t1=", "v=", "i=", "fb=", "trip=", "lim=", "mode=", "fault="} {
		if !contains(line, key) {
			t.Fatalf("STATS line missing %q: %s", key, line)
		}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
