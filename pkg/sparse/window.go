package sparse

// Window is a view of the bytes being tested. At returns the byte at
// index and true, or false when the window holds no byte there. Negative
// indices count from the end of the underlying data.
type Window interface {
	At(index int) (byte, bool)
}

// Bytes is a Window over a fully materialized byte slice.
type Bytes []byte

// At implements Window. A negative index resolves to len(b)+index.
func (b Bytes) At(index int) (byte, bool) {
	if index < 0 {
		index += len(b)
	}
	if index < 0 || index >= len(b) {
		return 0, false
	}
	return b[index], true
}

// Head is a Window over the leading bytes of a larger source whose size
// is unknown. Negative indices never resolve.
type Head []byte

// At implements Window.
func (h Head) At(index int) (byte, bool) {
	if index < 0 || index >= len(h) {
		return 0, false
	}
	return h[index], true
}
