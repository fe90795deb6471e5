package models

import "strings"

// NormalizeCPF strips the usual formatting characters from a CPF.
func NormalizeCPF(cpf string) string {
	replacer := strings.NewReplacer(".", "", "-", "", " ", "")
	return replacer.Replace(cpf)
}

// IsValidCPF validates a Brazilian CPF: 11 digits, not all equal, and both
// check digits consistent with the standard mod-11 algorithm.
func IsValidCPF(cpf string) bool {
	cpf = NormalizeCPF(cpf)
	if len(cpf) != 11 {
		return false
	}

	digits := make([]int, 11)
	allEqual := true
	for i, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
		if digits[i] != digits[0] {
			allEqual = false
		}
	}
	if allEqual {
		return false
	}

	if digits[9] != cpfCheckDigit(digits, 9) {
		return false
	}
	return digits[10] == cpfCheckDigit(digits, 10)
}

func cpfCheckDigit(digits []int, length int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += digits[i] * (length + 1 - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}
