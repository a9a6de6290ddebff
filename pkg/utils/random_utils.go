package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// 二维码凭证使用的字符集：大写字母与数字
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomCode 生成指定长度的大写字母数字凭证码
func RandomCode(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("generate random code failed")
	}

	result := make([]byte, length)
	for i, b := range buf {
		result[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(result)
}

// RandomToken 生成n字节随机数的十六进制令牌（结果长度为2n）
func RandomToken(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("generate random token failed")
	}
	return hex.EncodeToString(buf)
}
