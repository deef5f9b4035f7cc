package rewards

import (
	"crypto/rand"
	"strings"
	"time"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const codeLength = 6

// генерация кода: префикс + 6 символов [A-Z0-9]
func randomCode(prefix string) (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 = 36*7, отбрасываем хвост для равномерности
			if b >= 252 {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return prefix + string(out), nil
}

// коды хранятся в верхнем регистре
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
