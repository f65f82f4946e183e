package textfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := "Static IP4 port – café € ÿ «x»"
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %q want %q", out, in)
	}
}

func TestEncodeSingleBytePerRune(t *testing.T) {
	got := Encode("é€")
	want := []byte{0xe9, 0x80}
	if string(got) != string(want) {
		t.Fatalf("Encode = % x, want % x", got, want)
	}
}

func TestDecodeUndefinedBytesBecomeReplacement(t *testing.T) {
	raw := []byte{'a', 0x81, 'b', 0x8d, 0x8f, 0x90, 0x9d, 'c'}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := "a�b����c"
	if out != want {
		t.Fatalf("Decode = %q, want %q", out, want)
	}
}

func TestEncodeUnsupportedRunes(t *testing.T) {
	got := string(Encode("a日b�"))
	if got != "a?b?" {
		t.Fatalf("Encode = %q, want %q", got, "a?b?")
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SimConnect.xml")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	text := "<Descr>Übung</Descr>\n"
	if err := Write(path, text); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "\xdcbung") {
		t.Fatalf("file not windows-1252 encoded: % x", raw)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != text {
		t.Fatalf("Read = %q, want %q", got, text)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", st.Mode().Perm())
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.xml"))
	if !errors.Is(err, ErrRead) {
		t.Fatalf("err = %v, want ErrRead", err)
	}
}

func TestWriteMissingDirectory(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "nope", "SimConnect.xml"), "x")
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}
}

type failingTransformer struct{ transform.NopResetter }

func (failingTransformer) Transform(dst, src []byte, atEOF bool) (int, int, error) {
	return 0, 0, errors.New("bad input")
}

func TestDecodeFailureWrapsErrDecode(t *testing.T) {
	orig := newDecoder
	newDecoder = func() *encoding.Decoder { return &encoding.Decoder{Transformer: failingTransformer{}} }
	defer func() { newDecoder = orig }()

	_, err := Decode([]byte("abc"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}

	path := filepath.Join(t.TempDir(), "SimConnect.xml")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, _, err := Load(path)
	if !errors.Is(err, ErrDecode) || string(raw) != "abc" {
		t.Fatalf("Load = %q, %v; want raw bytes and ErrDecode", raw, err)
	}
}
