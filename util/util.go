package util

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonDigitRx = regexp.MustCompile(`\D+`)
	digitRunRx = regexp.MustCompile(`[^0-9]+`)
)

func FileExists(name string) bool {
	_, err := os.Stat(name)

	if os.IsNotExist(err) {
		return false
	}

	//sometimes there can be permission or other errors
	//here we use a simple logic that if file exists and we can use it then true otherwise false
	return err == nil
}

func GetEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultVal
}

func GetEnvAsInt(name string, defaultVal int) int {
	valueStr := GetEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}

	return defaultVal
}

func GetEnvAsFloat(name string, defaultVal float64) float64 {
	valueStr := GetEnv(name, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}

	return defaultVal
}

func GetEnvAsBool(name string, defaultVal bool) bool {
	valueStr := GetEnv(name, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}

	return defaultVal
}

func IsBlank(s string) bool {
	return len(strings.TrimSpace(s)) == 0
}

//FormatNumber normalizes a raw phone number to canonical international form.
//With a country prefix the result carries a leading plus; numbers already
//starting with the prefix and long enough are not prefixed twice.
func FormatNumber(raw, prefix string) string {
	digits := nonDigitRx.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	if prefix != "" {
		if strings.HasPrefix(digits, prefix) && len(digits) >= len(prefix)+8 {
			return "+" + digits
		}
		return "+" + prefix + digits
	}
	return digits
}

//ParseNumbers extracts phone numbers from free-form text separated by any
//non-digit characters. Tokens shorter than 8 digits and duplicates after
//normalization are dropped. Order of first occurrence is kept.
func ParseNumbers(text, prefix string) []string {
	tokens := digitRunRx.Split(text, -1)
	seen := make(map[string]bool)
	var numbers []string
	for _, t := range tokens {
		if len(t) < 8 {
			continue
		}
		num := FormatNumber(t, prefix)
		if num == "" || seen[num] {
			continue
		}
		seen[num] = true
		numbers = append(numbers, num)
	}
	return numbers
}
