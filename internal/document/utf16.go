package document

// utf16OffsetToByteOffset maps an LSP character offset on a line to a byte
// offset into the Go string. Offsets past the end clamp to len(s).
func utf16OffsetToByteOffset(s string, utf16Offset int) int {
	utf16Count := 0
	for i, r := range s {
		if utf16Count >= utf16Offset {
			return i
		}
		if r >= 0x10000 {
			utf16Count += 2
		} else {
			utf16Count++
		}
	}
	return len(s)
}
