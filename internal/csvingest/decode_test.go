package csvingest

import (
	"testing"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestDecodeStatementUTF8(t *testing.T) {
	in := "date,store,price\n2025-04-01,イオン,1280\n"
	got, err := DecodeStatement([]byte(in))
	if err != nil {
		t.Fatalf("DecodeStatement failed: %v", err)
	}
	if got != in {
		t.Errorf("utf-8 input altered: got %q", got)
	}
}

func TestDecodeStatementShiftJISFallback(t *testing.T) {
	want := "日付,店舗,金額\n2025-04-01,イオン,1280\n"

	sjis, _, err := transform.Bytes(japanese.ShiftJIS.NewEncoder(), []byte(want))
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	if utf8.Valid(sjis) {
		t.Fatal("fixture is unexpectedly valid UTF-8, test would not exercise the fallback")
	}

	got, err := DecodeStatement(sjis)
	if err != nil {
		t.Fatalf("DecodeStatement failed: %v", err)
	}
	if got != want {
		t.Errorf("decoded text: got %q, want %q", got, want)
	}
}
