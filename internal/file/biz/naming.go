package biz

import (
	"mime"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const defaultContentType = "application/octet-stream"

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	namespaceChars  = regexp.MustCompile(`[^a-z0-9._-]`)
)

// NamespaceFromEmail alice@example.com => alice-example
func NamespaceFromEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", ErrInvalidEmail
	}

	local := email[:at]
	domain := email[at+1:]
	if dot := strings.IndexByte(domain, '.'); dot >= 0 {
		domain = domain[:dot]
	}

	ns := namespaceChars.ReplaceAllString(local, "") + "-" + namespaceChars.ReplaceAllString(domain, "")
	if strings.HasPrefix(ns, "-") || strings.HasSuffix(ns, "-") {
		return "", ErrInvalidEmail
	}
	return ns, nil
}

// NewOwner 由 token 中的身份构造 Owner
func NewOwner(userID, email string) (Owner, error) {
	ns, err := NamespaceFromEmail(email)
	if err != nil {
		return Owner{}, err
	}
	return Owner{ID: userID, Email: email, Namespace: ns}, nil
}

// SanitizeFileName 只保留 ASCII 字母数字和 ._-，空白折叠为下划线；
// 结果为空返回 ErrInvalidFileName
func SanitizeFileName(name string) (string, error) {
	// 去掉重音符号等组合字符：é => e
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		if r == '/' || r == '\\' {
			return ' '
		}
		return r
	}, name)

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")

	if name == "" || len(name) > 255 {
		return "", ErrInvalidFileName
	}
	return name, nil
}

// BuildKey 由命名空间和文件名生成存储 key
func BuildKey(namespace, fileName string) string {
	return namespace + "/" + fileName
}

// OwnsKey key 是否属于该用户的命名空间
func (o Owner) OwnsKey(key string) bool {
	prefix := o.Prefix()
	return len(key) > len(prefix) && strings.HasPrefix(key, prefix)
}

// Prefix 用户对象前缀
func (o Owner) Prefix() string {
	return o.Namespace + "/"
}

// DisplayNameFromKey 取 key 的最后一段
func DisplayNameFromKey(key string) string {
	return path.Base(key)
}

// DetectContentType 按扩展名推断，未知时返回 application/octet-stream
func DetectContentType(fileName string) string {
	if ct := mime.TypeByExtension(path.Ext(fileName)); ct != "" {
		return ct
	}
	return defaultContentType
}

// MapTier 对象存储类型 => Tier
// 空 => standard；GLACIER/DEEP_ARCHIVE => glacier，恢复进行中为 unarchiving
func MapTier(storageClass string, restoreOngoing bool) Tier {
	switch strings.ToLower(storageClass) {
	case "glacier", "deep_archive":
		if restoreOngoing {
			return TierUnarchiving
		}
		return TierGlacier
	default:
		return TierStandard
	}
}

// IsArchived 对象是否处于归档存储类型
func IsArchived(storageClass string) bool {
	return MapTier(storageClass, false) == TierGlacier
}

// StorageClassFor Tier => 对象存储类型
func StorageClassFor(t Tier) string {
	if t == TierGlacier {
		return "GLACIER"
	}
	return "STANDARD"
}

// ParseTier 解析目标层级，只接受 standard / glacier
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierStandard:
		return TierStandard, nil
	case TierGlacier:
		return TierGlacier, nil
	}
	return "", ErrInvalidTier
}
