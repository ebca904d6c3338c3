package p25

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/dbehnke/reflector-nexus/internal/testhelpers"
	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"github.com/dbehnke/reflector-nexus/pkg/peer"
	"github.com/dbehnke/reflector-nexus/pkg/reflector"
	"github.com/dbehnke/reflector-nexus/pkg/report"
)

func poll(callsign string) []byte {
	frame := bytes.Repeat([]byte{' '}, PollFrameSize)
	frame[0] = OpcodePoll
	copy(frame[OffsetCallsign:], callsign)
	return frame
}

func idFrame(opcode byte, id uint32) []byte {
	return []byte{opcode, byte(id >> 16), byte(id >> 8), byte(id), 0xAA}
}

func TestClassify(t *testing.T) {
	a := New()
	tests := []struct {
		frame []byte
		want  reflector.FrameKind
	}{
		{nil, reflector.FrameUnknown},
		{poll("N0CALL"), reflector.FrameRegister},
		{[]byte{OpcodeUnlink}, reflector.FrameUnregister},
		{[]byte{OpcodeLDU1LC, 0x00}, reflector.FrameData},
		{[]byte{0x62, 0x01}, reflector.FrameData},
		{[]byte{OpcodeTerm}, reflector.FrameData},
	}
	for _, tt := range tests {
		if got := a.Classify(tt.frame); got != tt.want {
			t.Errorf("Classify(% x) = %v, want %v", tt.frame, got, tt.want)
		}
	}
}

func TestDecodeRegistration(t *testing.T) {
	reg, err := New().DecodeRegistration(poll("KO4UYJ"))
	if err != nil {
		t.Fatalf("DecodeRegistration failed: %v", err)
	}
	if reg.Callsign != "KO4UYJ" {
		t.Errorf("Expected KO4UYJ, got %q", reg.Callsign)
	}

	if _, err := New().DecodeRegistration([]byte{OpcodePoll, 'K'}); err == nil {
		t.Error("Expected short poll to fail")
	}
}

func TestDecodeCallBoundary_LDU1Sequence(t *testing.T) {
	a := New()
	p := peer.NewPeer(&net.UDPAddr{Port: 1}, "N0CALL", "", time.Now())

	cb, err := a.DecodeCallBoundary([]byte{OpcodeLDU1LC, 0x00}, p)
	if err != nil || cb.Start || !cb.Relay {
		t.Fatalf("Unexpected LCF result: %+v %v", cb, err)
	}
	if lcf, ok := linkControlFormat(p); !ok || lcf != 0x00 {
		t.Errorf("Expected LCF 0x00, got %#x %v", lcf, ok)
	}

	// Source before destination does not start a call
	if cb, _ := a.DecodeCallBoundary(idFrame(OpcodeLDU1SR, 3120001), p); cb.Start {
		t.Fatal("Call must not start before the destination is known")
	}

	if _, err := a.DecodeCallBoundary(idFrame(OpcodeLDU1DT, 10200), p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cb, _ = a.DecodeCallBoundary(idFrame(OpcodeLDU1SR, 3120001), p)
	if !cb.Start || cb.SrcID != "3120001" || cb.DstID != "10200" {
		t.Fatalf("Expected call start 3120001 -> 10200, got %+v", cb)
	}
	p.BeginTransmission(cb.StreamID, cb.SrcID, cb.DstID, time.Now(), CallHang)

	// A repeated superframe does not start the call again
	_, _ = a.DecodeCallBoundary([]byte{OpcodeLDU1LC, 0x00}, p)
	_, _ = a.DecodeCallBoundary(idFrame(OpcodeLDU1DT, 10200), p)
	if cb, _ := a.DecodeCallBoundary(idFrame(OpcodeLDU1SR, 3120001), p); cb.Start {
		t.Error("Expected a single call start per call")
	}

	cb, _ = a.DecodeCallBoundary([]byte{OpcodeTerm}, p)
	if !cb.End || !cb.Relay {
		t.Errorf("Expected terminator to end and relay, got %+v", cb)
	}
	if _, ok := linkControlFormat(p); ok {
		t.Error("Expected call state to reset after terminator")
	}
}

func TestDecodeCallBoundary_ShortFrames(t *testing.T) {
	a := New()
	p := peer.NewPeer(&net.UDPAddr{Port: 1}, "N0CALL", "", time.Now())
	for _, frame := range [][]byte{{OpcodeLDU1LC}, {OpcodeLDU1DT, 1, 2}, {OpcodeLDU1SR}} {
		if _, err := a.DecodeCallBoundary(frame, p); err == nil {
			t.Errorf("Expected error for short frame % x", frame)
		}
	}
}

func TestReflector_CallScenario(t *testing.T) {
	tr := testhelpers.NewMockTransport(41000)
	rec := &testhelpers.Recorder{}
	e := reflector.New(New(), reflector.Options{
		Config:    reflector.Config{Timeout: 30 * time.Second},
		Reporter:  rec,
		Logger:    logger.New(logger.Config{Level: "error"}),
		Transport: tr,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()
	defer e.Stop()

	a := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 41000}
	b := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 2), Port: 41000}
	tr.Deliver(a, poll("N0CALL"))
	tr.Deliver(b, poll("W1AW"))

	frames := [][]byte{
		{OpcodeLDU1LC, 0x00, 0x00},
		idFrame(OpcodeLDU1DT, 10200),
		idFrame(OpcodeLDU1SR, 3120001),
		{0x67, 0x01, 0x02},
		{OpcodeTerm, 0x00},
	}
	for _, f := range frames {
		tr.Deliver(a, f)
	}

	waitFor(t, func() bool { return len(tr.SentTo(b)) == 1+len(frames) })
	if got := rec.Count(report.CallEnd); got != 1 {
		t.Errorf("Expected one call end, got %d", got)
	}

	if got := tr.SentTo(a); len(got) != 1 || !bytes.Equal(got[0], poll("N0CALL")) {
		t.Errorf("Expected only the poll echo to the sender, got %d frames", len(got))
	}

	starts := rec.OfType(report.CallStart)
	if len(starts) != 1 || starts[0].SrcID != "3120001" || starts[0].DstID != "10200" || starts[0].Peer != "N0CALL" {
		t.Fatalf("Unexpected call start reports: %+v", starts)
	}
	if starts[0].Mode != report.ModeP25 {
		t.Errorf("Expected P25 mode, got %v", starts[0].Mode)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
