package byteio

// Align rounds pos up to the next multiple of sz, where sz must be a power
// of two. This implements the CDR alignment rule: a value of primitive
// width sz must begin at an offset that is a multiple of sz, measured from
// the start of the encapsulated payload (i.e. the first byte following the
// 4-byte CDR header).
func Align(pos, sz int64) int64 {
	if sz <= 1 {
		return pos
	}
	return (pos + sz - 1) &^ (sz - 1)
}

// Padding returns the number of filler bytes Align would insert before pos
// to reach the next multiple of sz.
func Padding(pos, sz int64) int64 {
	return Align(pos, sz) - pos
}
