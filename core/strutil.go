package core

const hexDigits = "0123456789abcdef"

// Utoa formats n in decimal without pulling in fmt
func Utoa(n uint32) string {
	var buf [10]byte
	i := len(buf)
	for {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			return string(buf[i:])
		}
	}
}

// hex16 renders a value as four lowercase hex digits
func hex16(v uint16) string {
	return string([]byte{
		hexDigits[v>>12&0xF],
		hexDigits[v>>8&0xF],
		hexDigits[v>>4&0xF],
		hexDigits[v&0xF],
	})
}
