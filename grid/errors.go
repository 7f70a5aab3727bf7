package grid

import "errors"

// ErrCodecSize is returned when an encoded buffer does not match the cell
// count it is decoded into.
var ErrCodecSize = errors.New("encoded size mismatch")
