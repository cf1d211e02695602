package protocol

import (
	"errors"
	"math/big"
	"math/rand"
	"strings"
	"testing"
)

func TestChecksumKnownVectors(t *testing.T) {
	testCases := []struct {
		name      string
		data      string
		blockSize int
		want      string
	}{
		{
			name:      "single 32-bit block",
			data:      "10100101101001011010010110100101",
			blockSize: 32,
			want:      "01011010010110100101101001011010",
		},
		{
			name:      "two bytes no carry",
			data:      "0000000100000010",
			blockSize: 8,
			want:      "11111100",
		},
		{
			name:      "end-around carry",
			data:      "1111111100000001",
			blockSize: 8,
			want:      "11111110",
		},
		{
			name:      "front padding",
			data:      "1",
			blockSize: 4,
			want:      "1110",
		},
		{
			name:      "segment data 01ff66ff",
			data:      "00000001111111110110011011111111",
			blockSize: 8,
			want:      "10011000",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Checksum(tc.data, tc.blockSize)
			if err != nil {
				t.Fatalf("Checksum failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Checksum(%q, %d) = %q, want %q", tc.data, tc.blockSize, got, tc.want)
			}
			if len(got) != tc.blockSize {
				t.Errorf("checksum is %d bits, want %d", len(got), tc.blockSize)
			}
		})
	}
}

func TestVerifyAllZero(t *testing.T) {
	data := "10100101101001011010010110100101"
	sum, err := Checksum(data, 32)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}

	result, err := Checksum(data+sum, 32)
	if err != nil {
		t.Fatalf("Checksum over payload failed: %v", err)
	}
	if result != strings.Repeat("0", 32) {
		t.Errorf("payload checksum should be all zero, got %q", result)
	}

	ok, err := Verify(data+sum, 32)
	if err != nil || !ok {
		t.Errorf("Verify = %v, %v; want true", ok, err)
	}
}

func TestHexChecksum(t *testing.T) {
	got, err := HexChecksum("01ff66ff", 2)
	if err != nil {
		t.Fatalf("HexChecksum failed: %v", err)
	}
	if got != "98" {
		t.Errorf("expected 98, got %q", got)
	}

	if _, err := HexChecksum("01ff", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero digits: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := HexChecksum("zz", 2); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("bad hex: expected ErrInvalidCharacter, got %v", err)
	}
}

func TestChecksumErrors(t *testing.T) {
	if _, err := Checksum("0101", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("block size 0: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Checksum("0101", -8); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative block size: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Checksum("", 8); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty data: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Checksum("01201", 8); !errors.Is(err, ErrInvalidCharacter) {
		t.Errorf("non-binary data: expected ErrInvalidCharacter, got %v", err)
	}
	if _, err := Verify("0101", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Verify block size 0: expected ErrInvalidArgument, got %v", err)
	}
}

func randomBits(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rng.Intn(2))
	}
	return string(b)
}

func TestChecksumRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, blockSize := range []int{1, 3, 4, 8, 12, 16, 32, 64} {
		for i := 0; i < 50; i++ {
			data := randomBits(rng, 1+rng.Intn(200))
			sum, err := Checksum(data, blockSize)
			if err != nil {
				t.Fatalf("Checksum failed: %v", err)
			}
			ok, err := Verify(data+sum, blockSize)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !ok {
				t.Errorf("block %d: Verify(%q + %q) = false", blockSize, data, sum)
			}
		}
	}
}

// Every single-bit error in a payload whose data fits one block is detected
func TestSingleBitErrorDetected(t *testing.T) {
	for _, blockSize := range []int{2, 4, 8} {
		for value := 0; value < 1<<blockSize; value++ {
			data := big.NewInt(int64(value)).Text(2)
			data = strings.Repeat("0", blockSize-len(data)) + data
			sum, err := Checksum(data, blockSize)
			if err != nil {
				t.Fatalf("Checksum failed: %v", err)
			}

			payload := []byte(data + sum)
			for bit := range payload {
				flipped := append([]byte(nil), payload...)
				flipped[bit] ^= 1 // '0' <-> '1'
				ok, err := Verify(string(flipped), blockSize)
				if err != nil {
					t.Fatalf("Verify failed: %v", err)
				}
				if ok {
					t.Errorf("block %d data %s: flip of bit %d not detected", blockSize, data, bit)
				}
			}
		}
	}
}

// Sum agrees with word-wise addition modulo 2^b - 1
func TestSumMatchesModularArithmetic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, blockSize := range []int{4, 8, 16, 24} {
		modulus := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(blockSize)), big.NewInt(1))
		for i := 0; i < 40; i++ {
			words := 1 + rng.Intn(20)
			data := randomBits(rng, words*blockSize)

			total := new(big.Int)
			for w := 0; w < words; w++ {
				v, _ := new(big.Int).SetString(data[w*blockSize:(w+1)*blockSize], 2)
				total.Add(total, v)
			}
			total.Mod(total, modulus)

			sum, err := Sum(data, blockSize)
			if err != nil {
				t.Fatalf("Sum failed: %v", err)
			}
			got, _ := new(big.Int).SetString(sum, 2)
			got.Mod(got, modulus)
			if got.Cmp(total) != 0 {
				t.Errorf("block %d: Sum(%q) = %s (mod %s = %s), want %s", blockSize, data, sum, modulus, got, total)
			}

			check, _ := Checksum(data, blockSize)
			if check != OnesComplement(sum) {
				t.Errorf("Checksum %q is not the complement of Sum %q", check, sum)
			}
		}
	}
}

// Block order does not affect the result: end-around carry addition is
// commutative
func TestChecksumBlockOrder(t *testing.T) {
	a := "11001010"
	b := "01110001"
	c := "10011111"

	first, err := Checksum(a+b+c, 8)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	for _, perm := range []string{a + c + b, b + a + c, c + b + a} {
		got, err := Checksum(perm, 8)
		if err != nil {
			t.Fatalf("Checksum failed: %v", err)
		}
		if got != first {
			t.Errorf("reordered blocks gave %q, want %q", got, first)
		}
	}
}

func TestOnesComplement(t *testing.T) {
	if got := OnesComplement("1100"); got != "0011" {
		t.Errorf("expected 0011, got %q", got)
	}
	if got := OnesComplement(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
