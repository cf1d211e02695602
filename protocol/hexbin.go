package protocol

import (
	"fmt"
	"strings"
)

// Nibbles maps a 4-bit value to its MSB-first binary expansion
var Nibbles = [16]string{
	"0000", "0001", "0010", "0011", "0100", "0101", "0110", "0111",
	"1000", "1001", "1010", "1011", "1100", "1101", "1110", "1111",
}

const hexDigits = "0123456789abcdef"

// nibbleValues maps an ASCII byte to its hex value, 0xFF for non-hex bytes
var nibbleValues = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xFF
	}
	for i := 0; i < 10; i++ {
		t['0'+i] = byte(i)
	}
	for i := 0; i < 6; i++ {
		t['a'+i] = byte(10 + i)
		t['A'+i] = byte(10 + i)
	}
	return t
}()

// NibbleValue returns the value of a single hex digit. Upper and lower case
// letters map to the same value
func NibbleValue(c byte) (byte, bool) {
	v := nibbleValues[c]
	return v, v != 0xFF
}

// HexDigit returns the lowercase hex digit for the low 4 bits of v
func HexDigit(v byte) byte {
	return hexDigits[v&0x0F]
}

// HexToBinary expands every hex digit into its 4-bit binary form
func HexToBinary(hex string) (string, error) {
	var b strings.Builder
	b.Grow(len(hex) * NibbleBits)
	for i := 0; i < len(hex); i++ {
		v, ok := NibbleValue(hex[i])
		if !ok {
			return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, hex[i], i)
		}
		b.WriteString(Nibbles[v])
	}
	return b.String(), nil
}

// BinaryToHex folds groups of 4 bits back into lowercase hex digits
func BinaryToHex(bits string) (string, error) {
	if len(bits)%NibbleBits != 0 {
		return "", fmt.Errorf("%w: binary length %d is not a multiple of %d", ErrInvalidArgument, len(bits), NibbleBits)
	}

	out := make([]byte, 0, len(bits)/NibbleBits)
	for i := 0; i < len(bits); i += NibbleBits {
		var v byte
		for k := 0; k < NibbleBits; k++ {
			c := bits[i+k]
			if c != '0' && c != '1' {
				return "", fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, c, i+k)
			}
			v = v<<1 | (c - '0')
		}
		out = append(out, hexDigits[v])
	}
	return string(out), nil
}
