package geotiff

// TIFF LZW decoder. TIFF's LZW variant widens the code size one code earlier
// than the GIF variant implemented by compress/lzw, so feeding TIFF streams to
// the standard library fails with invalid-code errors. This follows the TIFF
// 6.0 specification, MSB-first bit order.

import (
	"errors"
	"io"
)

const (
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstFree = 258
	lzwTableSize = 4096
)

type lzwString struct {
	prefix int // table index of the prefix, -1 for literals
	tail   byte
	length int
}

// lzwDecode expands a TIFF LZW stream.
func lzwDecode(src []byte) ([]byte, error) {
	table := make([]lzwString, lzwTableSize+1)
	for i := 0; i < 256; i++ {
		table[i] = lzwString{prefix: -1, tail: byte(i), length: 1}
	}

	var (
		bitBuf  uint32
		bitLen  int
		pos     int
		width   = 9
		next    = lzwFirstFree
		prev    = -1
		out     []byte
		scratch []byte
	)

	readCode := func() (int, error) {
		for bitLen < width {
			if pos >= len(src) {
				return 0, io.ErrUnexpectedEOF
			}
			bitBuf = bitBuf<<8 | uint32(src[pos])
			bitLen += 8
			pos++
		}
		bitLen -= width
		return int(bitBuf>>uint(bitLen)) & (1<<uint(width) - 1), nil
	}

	// expand writes the table string for code into scratch, last byte first.
	expand := func(code int) []byte {
		s := table[code]
		if cap(scratch) < s.length {
			scratch = make([]byte, s.length)
		}
		scratch = scratch[:s.length]
		for i := s.length - 1; i >= 0; i-- {
			scratch[i] = table[code].tail
			code = table[code].prefix
		}
		return scratch
	}

	first, err := readCode()
	if err != nil {
		return nil, err
	}
	if first != lzwClearCode {
		return nil, errors.New("geotiff: lzw stream does not start with a clear code")
	}

	for {
		code, err := readCode()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return out, nil // streams may omit the explicit EOI
			}
			return nil, err
		}

		switch {
		case code == lzwEOICode:
			return out, nil
		case code == lzwClearCode:
			next = lzwFirstFree
			width = 9
			prev = -1
			continue
		case prev == -1:
			if code >= 256 {
				return nil, errors.New("geotiff: lzw literal expected after clear code")
			}
			out = append(out, byte(code))
			prev = code
			continue
		case code > next:
			return nil, errors.New("geotiff: invalid lzw code")
		}

		var s []byte
		if code == next {
			// The code being defined right now: previous string plus its own
			// first byte.
			s = expand(prev)
			s = append(s, s[0])
		} else {
			s = expand(code)
		}
		out = append(out, s...)

		if next <= lzwTableSize {
			table[next] = lzwString{prefix: prev, tail: s[0], length: table[prev].length + 1}
			next++
		}
		// TIFF widens as soon as the next code would not fit, one code
		// earlier than GIF.
		if next+1 >= 1<<uint(width) && width < 12 {
			width++
		}
		prev = code
	}
}
