package recarga

import (
	"strconv"
	"time"
)

// FormatCurrency renders an amount as Colombian pesos, e.g. "$10.000".
func FormatCurrency(amount int) string {
	digits := strconv.Itoa(amount)
	negative := false
	if len(digits) > 0 && digits[0] == '-' {
		negative = true
		digits = digits[1:]
	}

	grouped := make([]byte, 0, len(digits)+len(digits)/3+2)
	for index, digit := range []byte(digits) {
		remaining := len(digits) - index
		if index > 0 && remaining%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, digit)
	}

	prefix := "$"
	if negative {
		prefix = "-$"
	}
	return prefix + string(grouped)
}

// FormatPhoneNumber renders a ten-digit number as "300 123 4567".
func FormatPhoneNumber(phoneNumber string) string {
	if len(phoneNumber) != 10 {
		return phoneNumber
	}
	return phoneNumber[0:3] + " " + phoneNumber[3:6] + " " + phoneNumber[6:]
}

// FormatDateShort renders a timestamp as "18/11/2025".
func FormatDateShort(timestamp time.Time) string {
	return timestamp.Format("02/01/2006")
}

// FormatDate renders a timestamp with the time of day, "18/11/2025 18:41".
func FormatDate(timestamp time.Time) string {
	return timestamp.Format("02/01/2006 15:04")
}
