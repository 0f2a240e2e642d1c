// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleEntry mirrors the shape of an exported tuning record.
type sampleEntry struct {
	Solver string `json:"solver"`
	Arch   string `json:"arch,omitempty"`
	NumCU  int    `json:"num_cu"`
}

// sampleKernel uses cbor struct tags.
type sampleKernel struct {
	Name string `cbor:"name"`
	Size int    `cbor:"size"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEntry{
		Solver: "ConvHipImplicitGemmV4R1Fwd",
		Arch:   "gfx90a",
		NumCU:  104,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleEntry{
		Solver: "ConvAsm1x1U",
		Arch:   "gfx908",
		NumCU:  120,
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	messages := []sampleEntry{
		{Solver: "ConvAsm1x1U", Arch: "gfx90a", NumCU: 104},
		{Solver: "ConvOclDirectFwd", Arch: "gfx90a", NumCU: 110},
		{Solver: "GemmFwd1x1_0_1", NumCU: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got sampleEntry
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestCBORTagRoundtrip(t *testing.T) {
	// Types with cbor tags and no json tags encode through the same
	// modes as json-tagged types.
	original := sampleKernel{Name: "naive_conv_fwd", Size: 4096}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleKernel
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("cbor-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	// A zero-value omitempty field should not appear in output.
	withArch := sampleEntry{Solver: "a", Arch: "gfx90a", NumCU: 1}
	withoutArch := sampleEntry{Solver: "a", NumCU: 1}

	dataWithArch, err := Marshal(withArch)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutArch)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the arch field should be shorter
	// because the omitted field is not present.
	if len(dataWithout) >= len(dataWithArch) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWithArch))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var message sampleEntry
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &message)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. Kernel binaries travel this way.
	type envelope struct {
		Payload []byte `cbor:"payload"`
	}

	original := envelope{Payload: []byte{0x7f, 'E', 'L', 'F', 0x00, 0x02}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("byte string roundtrip: got %q, want %q", decoded.Payload, original.Payload)
	}
}

func BenchmarkMarshal(b *testing.B) {
	message := sampleEntry{
		Solver: "ConvHipImplicitGemmV4R1Fwd",
		Arch:   "gfx90a",
		NumCU:  104,
	}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(message)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"solver": "ConvAsm1x1U"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}

	if !strings.Contains(notation, `"solver"`) {
		t.Errorf("notation %q does not contain \"solver\"", notation)
	}
	if !strings.Contains(notation, `"ConvAsm1x1U"`) {
		t.Errorf("notation %q does not contain \"ConvAsm1x1U\"", notation)
	}
}

func TestDiagnoseFirst(t *testing.T) {
	item1, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal item 1: %v", err)
	}
	item2, err := Marshal(int64(42))
	if err != nil {
		t.Fatalf("Marshal item 2: %v", err)
	}

	var sequence []byte
	sequence = append(sequence, item1...)
	sequence = append(sequence, item2...)

	notation, remaining, err := DiagnoseFirst(sequence)
	if err != nil {
		t.Fatalf("DiagnoseFirst: %v", err)
	}

	if !strings.Contains(notation, `"hello"`) {
		t.Errorf("first item notation %q does not contain \"hello\"", notation)
	}
	if len(remaining) == 0 {
		t.Fatal("expected remaining bytes after first item")
	}

	notation2, remaining2, err := DiagnoseFirst(remaining)
	if err != nil {
		t.Fatalf("DiagnoseFirst second: %v", err)
	}
	if !strings.Contains(notation2, "42") {
		t.Errorf("second item notation %q does not contain \"42\"", notation2)
	}
	if len(remaining2) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining2))
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	message := sampleEntry{
		Solver: "ConvHipImplicitGemmV4R1Fwd",
		Arch:   "gfx90a",
		NumCU:  104,
	}
	data, err := Marshal(message)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		var decoded sampleEntry
		Unmarshal(data, &decoded)
	}
}
