package cache

import "unicode/utf16"

// 估算用的位元組數
const (
	bytesPerCodeUnit = 2
	bytesPerNumber   = 8
)

// SizeOf 估算 entry 的記憶體占用（位元組）
//
// 只用於通知訊息與統計，不影響任何流程。
// 字串（含欄位名）以 UTF-16 每個 code unit 2 bytes 計，數字 8 bytes。
func SizeOf(e Entry) int {
	size := 0
	for _, field := range []string{fieldBody, fieldType, fieldTouched, fieldExpire} {
		size += stringSize(field)
	}
	size += stringSize(e.Body)
	size += stringSize(e.Type)
	size += 2 * bytesPerNumber // touched, expire
	return size
}

func stringSize(s string) int {
	units := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			units += 2
		} else {
			units++
		}
	}
	return units * bytesPerCodeUnit
}

// kilobytes 換算為 KB
func kilobytes(size int) float64 {
	return float64(size) / 1024
}
