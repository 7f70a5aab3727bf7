package grid

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec turns cells into bytes for the wire and back
type Codec[T any] interface {
	// Size is the encoded width of one cell in bytes
	Size() int
	Encode(dst []byte, cells []T) []byte
	Decode(src []byte, cells []T) error
}

// Float64Codec encodes float64 cells as little endian IEEE 754
type Float64Codec struct{}

func (Float64Codec) Size() int { return 8 }

func (Float64Codec) Encode(dst []byte, cells []float64) []byte {
	for _, v := range cells {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
	}
	return dst
}

func (Float64Codec) Decode(src []byte, cells []float64) error {
	if len(src) != 8*len(cells) {
		return fmt.Errorf("%w: %d bytes for %d float64 cells", ErrCodecSize, len(src), len(cells))
	}
	for i := range cells {
		cells[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:]))
	}
	return nil
}

// BinaryCodec encodes any fixed size cell type, such as a struct of
// numeric fields, with encoding/binary
type BinaryCodec[T any] struct{}

func (BinaryCodec[T]) Size() int {
	var zero T
	return binary.Size(zero)
}

func (BinaryCodec[T]) Encode(dst []byte, cells []T) []byte {
	out, err := binary.Append(dst, binary.LittleEndian, cells)
	if err != nil {
		panic(fmt.Sprintf("cell type %T is not fixed size: %v", cells, err))
	}
	return out
}

func (c BinaryCodec[T]) Decode(src []byte, cells []T) error {
	if len(src) != c.Size()*len(cells) {
		return fmt.Errorf("%w: %d bytes for %d cells of %d bytes",
			ErrCodecSize, len(src), len(cells), c.Size())
	}
	if _, err := binary.Decode(src, binary.LittleEndian, cells); err != nil {
		return fmt.Errorf("decoding cells: %w", err)
	}
	return nil
}
