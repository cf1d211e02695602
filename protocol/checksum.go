package protocol

import (
	"fmt"
	"strings"
)

// Checksum calculates the one's-complement block checksum of a binary string.
//
// The data is left-padded with '0' up to a multiple of blockSize, the blocks
// are summed with end-around carry starting from the first block, and the
// result is inverted. The returned string is exactly blockSize bits long
func Checksum(data string, blockSize int) (string, error) {
	acc, err := sumBlocks(data, blockSize)
	if err != nil {
		return "", err
	}
	invert(acc)
	return string(acc), nil
}

// Sum returns the end-around-carry sum of the blocks without the final
// inversion
func Sum(data string, blockSize int) (string, error) {
	acc, err := sumBlocks(data, blockSize)
	if err != nil {
		return "", err
	}
	return string(acc), nil
}

// Verify reports whether payload (data followed by its checksum block)
// checksums to all zero bits
func Verify(payload string, blockSize int) (bool, error) {
	result, err := Checksum(payload, blockSize)
	if err != nil {
		return false, err
	}
	return strings.IndexByte(result, '1') < 0, nil
}

// OnesComplement returns bits with every '0' and '1' swapped
func OnesComplement(bits string) string {
	out := []byte(bits)
	invert(out)
	return string(out)
}

// HexChecksum computes the checksum of a hex string over blocks of digits hex
// digits and returns it as digits lowercase hex characters
func HexChecksum(hex string, digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("%w: hex block size %d", ErrInvalidArgument, digits)
	}
	bits, err := HexToBinary(hex)
	if err != nil {
		return "", err
	}
	sum, err := Checksum(bits, digits*NibbleBits)
	if err != nil {
		return "", err
	}
	return BinaryToHex(sum)
}

func sumBlocks(data string, blockSize int) ([]byte, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidArgument, blockSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidArgument)
	}
	for i := 0; i < len(data); i++ {
		if data[i] != '0' && data[i] != '1' {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidCharacter, data[i], i)
		}
	}

	padded := data
	if rem := len(data) % blockSize; rem != 0 {
		padded = strings.Repeat("0", blockSize-rem) + data
	}

	acc := []byte(padded[:blockSize])
	for i := blockSize; i < len(padded); i += blockSize {
		addBlock(acc, padded[i:i+blockSize])
	}
	return acc, nil
}

// addBlock adds next into acc in place, folding any carry out of the MSB back
// into the LSB until none remains
func addBlock(acc []byte, next string) {
	carry := byte(0)
	for k := len(acc) - 1; k >= 0; k-- {
		sum := (acc[k] - '0') + (next[k] - '0') + carry
		acc[k] = sum%2 + '0'
		carry = sum / 2
	}
	for carry != 0 {
		for k := len(acc) - 1; k >= 0 && carry != 0; k-- {
			sum := (acc[k] - '0') + carry
			acc[k] = sum%2 + '0'
			carry = sum / 2
		}
	}
}

func invert(bits []byte) {
	for i, c := range bits {
		if c == '0' {
			bits[i] = '1'
		} else {
			bits[i] = '0'
		}
	}
}
