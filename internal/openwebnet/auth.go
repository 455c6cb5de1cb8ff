package openwebnet

import "strconv"

// OpenPassword computes the reply to an OPEN password challenge.
//
// The gateway sends a numeric nonce; each digit selects a bit
// transformation applied to the numeric password. The client answers
// "*#<result>##".
//
// Parameters:
//   - password: the numeric gateway password
//   - nonce: the digits of the challenge frame "*#<nonce>##"
//
// Returns:
//   - string: the decimal result to send back
//   - error: if password is not a number
func OpenPassword(password, nonce string) (string, error) {
	pw, err := strconv.ParseUint(password, 10, 32)
	if err != nil {
		return "", ErrPasswordError
	}
	return strconv.FormatUint(uint64(calcPass(uint32(pw), nonce)), 10), nil
}

func calcPass(password uint32, nonce string) uint32 {
	var num1, num2 uint32
	started := false

	for i := 0; i < len(nonce); i++ {
		c := nonce[i]
		if c != '0' && !started {
			num2 = password
			started = true
		}
		switch c {
		case '1':
			num1 = (num2 & 0xFFFFFF80) >> 7
			num2 <<= 25
		case '2':
			num1 = (num2 & 0xFFFFFFF0) >> 4
			num2 <<= 28
		case '3':
			num1 = (num2 & 0xFFFFFFF8) >> 3
			num2 <<= 29
		case '4':
			num1 = num2 << 1
			num2 >>= 31
		case '5':
			num1 = num2 << 5
			num2 >>= 27
		case '6':
			num1 = num2 << 12
			num2 >>= 20
		case '7':
			num1 = num2&0x0000FF00 | (num2&0x000000FF)<<24 | (num2&0x00FF0000)>>16
			num2 = (num2 & 0xFF000000) >> 8
		case '8':
			num1 = (num2&0x0000FFFF)<<16 | num2>>24
			num2 = (num2 & 0x00FF0000) >> 8
		case '9':
			num1 = ^num2
		default:
			num1 = num2
		}
		if c != '0' && c != '9' {
			num1 |= num2
		}
		num2 = num1
	}
	return num1
}
