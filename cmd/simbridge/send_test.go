package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPayloadText(t *testing.T) {
	got, err := loadPayload("hello", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("unexpected payload: %q", got)
	}
}

func TestLoadPayloadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	want := []byte{0x00, 0x01, 0xFF}
	if err := os.WriteFile(path, want, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	got, err := loadPayload("", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected payload: %x", got)
	}
}

func TestLoadPayloadRejectsAmbiguousAndEmpty(t *testing.T) {
	if _, err := loadPayload("x", "y"); err == nil {
		t.Fatalf("expected error for both --text and --file")
	}
	if _, err := loadPayload("", ""); err == nil {
		t.Fatalf("expected error for missing payload")
	}
}
