package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// sha256Hex 规范哈希的统一实现
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CanonicalHash 跨平台活动身份：sha256("平台名:平台原生ID")
func CanonicalHash(platform, externalID string) string {
	return sha256Hex(platform + ":" + externalID)
}

// StableChecksum 快照的稳定校验和。
// json.Marshal 对map键做字典序排序，同一语义的payload无论来源侧键序如何都得到同一哈希。
func StableChecksum(snapshot map[string]interface{}) (string, error) {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("快照序列化失败: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ShouldPersist 变更检测：
//   - changed=false 时调用方只更新last_scanned_at（证明活性），不重写snapshot与checksum
//   - changed=true 时 snapshot+checksum+last_scanned_at 必须在同一事务里一起写
func ShouldPersist(previousChecksum string, snapshot map[string]interface{}) (checksum string, changed bool, err error) {
	checksum, err = StableChecksum(snapshot)
	if err != nil {
		return "", false, err
	}
	return checksum, checksum != previousChecksum, nil
}

// ProbeChecksum 转售探测结论的校验和：判定三要素有任一变化才算变化
func ProbeChecksum(availability string, isResale bool, finalURL string) string {
	return sha256Hex(fmt.Sprintf("%s|%t|%s", availability, isResale, finalURL))
}
