package chatclient

import (
	"fmt"
	"strings"
	"testing"
)

func deltaJSON(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func decodeAll(stream string, chunkSize int) string {
	var d StreamDecoder
	var out strings.Builder
	data := []byte(stream)
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		for _, delta := range d.Feed(data[start:end]) {
			out.WriteString(delta)
		}
	}
	return out.String()
}

func TestDecoderChunkBoundaryEquivalence(t *testing.T) {
	// Multibyte content forces chunk boundaries to land mid-codepoint.
	stream := strings.Join([]string{
		deltaJSON("Héllo"),
		deltaJSON(" wörld 🌍"),
		deltaJSON("! Tschüß"),
		"data: [DONE]",
		"",
	}, "\n")

	want := decodeAll(stream, len(stream))
	if want != "Héllo wörld 🌍! Tschüß" {
		t.Fatalf("single-chunk decode wrong: %q", want)
	}
	for size := 1; size <= len(stream); size++ {
		if got := decodeAll(stream, size); got != want {
			t.Fatalf("chunk size %d decoded %q, want %q", size, got, want)
		}
	}
}

func TestDecoderSplitAtEveryBoundary(t *testing.T) {
	stream := deltaJSON("ab") + "\n" + deltaJSON("cd") + "\ndata: [DONE]\n"
	for split := 0; split <= len(stream); split++ {
		var d StreamDecoder
		var out strings.Builder
		for _, delta := range d.Feed([]byte(stream[:split])) {
			out.WriteString(delta)
		}
		for _, delta := range d.Feed([]byte(stream[split:])) {
			out.WriteString(delta)
		}
		if out.String() != "abcd" {
			t.Fatalf("split at %d decoded %q", split, out.String())
		}
	}
}

func TestDecoderDoneSentinelOptional(t *testing.T) {
	withDone := deltaJSON("Hi") + "\n" + deltaJSON(" there") + "\ndata: [DONE]\n"
	withoutDone := deltaJSON("Hi") + "\n" + deltaJSON(" there") + "\n"

	if a, b := decodeAll(withDone, 3), decodeAll(withoutDone, 3); a != b || a != "Hi there" {
		t.Fatalf("sentinel changed the result: with=%q without=%q", a, b)
	}
}

func TestDecoderIgnoresCommentsAndBlankLines(t *testing.T) {
	stream := strings.Join([]string{
		": ping",
		"",
		deltaJSON("Hi"),
		": keep-alive",
		"",
		deltaJSON(" there"),
		"",
		"data: [DONE]",
		"",
	}, "\n")
	if got := decodeAll(stream, 5); got != "Hi there" {
		t.Fatalf("comments altered decode: %q", got)
	}
}

func TestDecoderSkipsUnknownFields(t *testing.T) {
	stream := "event: message\nid: 42\n" + deltaJSON("ok") + "\ndata: [DONE]\n"
	if got := decodeAll(stream, len(stream)); got != "ok" {
		t.Fatalf("unknown fields altered decode: %q", got)
	}
}

func TestDecoderToleratesCRLF(t *testing.T) {
	stream := deltaJSON("Hi") + "\r\n" + deltaJSON(" there") + "\r\ndata: [DONE]\r\n"
	if got := decodeAll(stream, 4); got != "Hi there" {
		t.Fatalf("crlf decode wrong: %q", got)
	}
}

func TestDecoderDiscardsInputAfterDone(t *testing.T) {
	var d StreamDecoder
	d.Feed([]byte("data: [DONE]\n"))
	if !d.Done() {
		t.Fatalf("sentinel not detected")
	}
	if deltas := d.Feed([]byte(deltaJSON("late") + "\n")); len(deltas) != 0 {
		t.Fatalf("content decoded after sentinel: %v", deltas)
	}
}

func TestDecoderHoldsPartialLine(t *testing.T) {
	var d StreamDecoder
	line := deltaJSON("whole")
	if deltas := d.Feed([]byte(line[:10])); len(deltas) != 0 {
		t.Fatalf("emitted from partial line: %v", deltas)
	}
	if deltas := d.Feed([]byte(line[10:])); len(deltas) != 0 {
		t.Fatalf("emitted before newline arrived: %v", deltas)
	}
	deltas := d.Feed([]byte("\n"))
	if len(deltas) != 1 || deltas[0] != "whole" {
		t.Fatalf("expected completed line to decode, got %v", deltas)
	}
}

func TestDecoderRebuffersUnparseableLine(t *testing.T) {
	var d StreamDecoder
	bad := "data: {\"choices\":\n"
	deltas := d.Feed([]byte(deltaJSON("A") + "\n" + bad))
	if len(deltas) != 1 || deltas[0] != "A" {
		t.Fatalf("deltas before the bad line lost: %v", deltas)
	}
	// The unparseable line is held, newline included, not discarded.
	if string(d.buf) != bad {
		t.Fatalf("bad line not re-buffered, buf=%q", d.buf)
	}
	if deltas := d.Feed(nil); len(deltas) != 0 {
		t.Fatalf("bad line decoded without new bytes: %v", deltas)
	}
	if string(d.buf) != bad {
		t.Fatalf("re-buffered line dropped on retry, buf=%q", d.buf)
	}
}

func TestDecoderSkipsEmptyDeltas(t *testing.T) {
	stream := deltaJSON("") + "\n" + `data: {"choices":[{"delta":{}}]}` + "\n" + deltaJSON("x") + "\n"
	if got := decodeAll(stream, len(stream)); got != "x" {
		t.Fatalf("empty deltas altered decode: %q", got)
	}
}
