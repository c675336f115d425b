package hostlink

import (
	"bytes"
	"log"
	"testing"
)

func TestMasterCustomLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := log.New(&buf, "external-prefix: ", 0)

	m := NewMaster(&MasterConfiguration{
		Logger: logger,
	})

	_ = m.AddChannel("line1", &ChannelConfiguration{
		URL: "tcp://localhost:9600",
	})

	if buf.String() != "external-prefix: hostlink-master [info]: added channel 'line1' (tcp://localhost:9600)\n" {
		t.Errorf("unexpected logger output '%s'", buf.String())
	}
}

func TestFrameTrace(t *testing.T) {
	var buf bytes.Buffer

	l := newLogger("hostlink-session(line1)", log.New(&buf, "", 0))

	// tracing is off by default
	l.Frame(">", []byte("@00RR0000000141*\r"))
	if buf.Len() != 0 {
		t.Errorf("unexpected logger output '%s'", buf.String())
	}

	l.traceFrames = true
	l.Frame(">", []byte("@00RR0000000141*\r"))
	if buf.String() != "hostlink-session(line1) [trace]: > \"@00RR0000000141*\\r\"\n" {
		t.Errorf("unexpected logger output '%s'", buf.String())
	}
}
