// Package hash 提供密码哈希与校验功能。
package hash

import "golang.org/x/crypto/bcrypt"

// dummyHash 是一个随机密码的 bcrypt 哈希。
// 当用户名不存在时，登录流程仍会对它执行一次比较，
// 使"用户不存在"与"密码错误"两条路径的耗时与行为一致。
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Password 使用 bcrypt 对明文密码进行不可逆的加盐哈希。
func Password(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Check 以常数时间比较明文密码与存储的哈希。
func Check(password, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// CheckDummy 对固定的占位哈希执行一次比较，比较结果被丢弃。
// 调用方在未命中用户时调用它，随后无条件返回统一的凭证错误。
func CheckDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
