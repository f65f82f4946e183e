// Package textfile reads and writes text files stored in Windows-1252.
package textfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/charmap"
)

var (
	ErrRead   = errors.New("read file")
	ErrDecode = errors.New("decode windows-1252")
	ErrWrite  = errors.New("write file")
)

// replacementByte is written for runes Windows-1252 cannot represent.
const replacementByte = '?'

var codepage = charmap.Windows1252

// newDecoder is swapped in tests. The Windows-1252 decoder maps every byte, so
// ErrDecode is only seen with a decoder that can fail.
var newDecoder = codepage.NewDecoder

// Read returns the content of path decoded from Windows-1252. Bytes without a
// mapping decode to U+FFFD; content never makes Read fail.
func Read(path string) (string, error) {
	_, text, err := Load(path)
	return text, err
}

// Load is Read that also returns the raw bytes of the file.
func Load(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w %s: %v", ErrRead, path, err)
	}
	text, err := Decode(raw)
	if err != nil {
		return raw, "", err
	}
	return raw, text, nil
}

// Decode converts Windows-1252 bytes to a string.
func Decode(raw []byte) (string, error) {
	out, err := newDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(out), nil
}

// Encode converts text to Windows-1252, writing '?' for runes outside the code page
// and for invalid UTF-8.
func Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := codepage.EncodeRune(r)
		if !ok {
			b = replacementByte
		}
		out = append(out, b)
	}
	return out
}

// Write encodes text to Windows-1252 and replaces path with it. The bytes go to a
// temporary file in the same directory which is renamed over path, so a failed
// write leaves the previous content in place.
func Write(path, text string) error {
	return WriteBytes(path, Encode(text))
}

// WriteBytes replaces path with already encoded data, like Write.
func WriteBytes(path string, data []byte) error {
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w %s: sync: %v", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return fmt.Errorf("%w %s: chmod: %v", ErrWrite, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w %s: %v", ErrWrite, path, err)
	}
	return nil
}
