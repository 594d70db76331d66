// Package image holds the compiler's output: a dense array of 32-bit words
// — emitted code followed by global data and packed string constants — and
// load/save to the little-endian binary file format.
package image

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// Image is the binary image: Words[0:CodeLength] is code, the remainder is
// data. By convention Words[0] is a NOP (address 0 is never a fixup target)
// and Words[1] is a JAL whose instr_index is patched to main's address once
// main is known.
type Image struct {
	Words      []int32
	CodeLength int32
}

// New returns an empty image.
func New() *Image {
	return &Image{}
}

// Save writes the image as a little-endian sequence of 32-bit words, with
// no header and no relocation table.
func (im *Image) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("image: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var buf [4]byte
	for _, word := range im.Words {
		binary.LittleEndian.PutUint32(buf[:], uint32(word))
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("image: write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("image: flush %s: %w", path, err)
	}
	return nil
}

// Load reads a binary image previously written by Save. CodeLength is not
// recoverable from the file alone (there is no header). Load sets
// CodeLength to the full word count; a caller that needs the real code
// length has to derive it itself.
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("image: %s is not a whole number of words", path)
	}
	words := make([]int32, len(raw)/4)
	for i := range words {
		words[i] = int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
	}
	return &Image{Words: words, CodeLength: int32(len(words))}, nil
}
