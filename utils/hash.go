package utils

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// FileMD5 计算文件MD5
func FileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// KeyMD5 计算多段数据拼接后的MD5，段之间用 0 字节分隔
func KeyMD5(parts ...[]byte) string {
	hash := md5.New()
	for i, p := range parts {
		if i > 0 {
			hash.Write([]byte{0})
		}
		hash.Write(p)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
