package biz

import (
	"fmt"
	"strings"
)

// LocatorKind 文件引用方式
type LocatorKind string

const (
	LocatorByKey         LocatorKind = "key"
	LocatorByID          LocatorKind = "id"
	LocatorByDatabaseRef LocatorKind = "ref" // files/<id>
)

const databaseRefPrefix = "files/"

// FileLocator 客户端传入的文件引用，在 service 层解析一次
type FileLocator struct {
	Kind  LocatorKind
	Value string // ByDatabaseRef 时为去掉前缀后的 id
}

// ParseLocator 解析 :ref 路径参数。
// by 为空时自动判断：files/ 前缀为数据库引用，含 / 为存储 key，否则为记录 id。
func ParseLocator(ref, by string) (FileLocator, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return FileLocator{}, ErrInvalidLocator
	}

	kind := LocatorKind(strings.ToLower(strings.TrimSpace(by)))
	if kind == "" {
		switch {
		case strings.HasPrefix(ref, databaseRefPrefix):
			kind = LocatorByDatabaseRef
		case strings.Contains(ref, "/"):
			kind = LocatorByKey
		default:
			kind = LocatorByID
		}
	}

	switch kind {
	case LocatorByKey:
		return FileLocator{Kind: LocatorByKey, Value: ref}, nil
	case LocatorByID:
		if strings.Contains(ref, "/") {
			return FileLocator{}, fmt.Errorf("%w: id must not contain '/'", ErrInvalidLocator)
		}
		return FileLocator{Kind: LocatorByID, Value: ref}, nil
	case LocatorByDatabaseRef:
		id := strings.TrimPrefix(ref, databaseRefPrefix)
		if id == ref || id == "" || strings.Contains(id, "/") {
			return FileLocator{}, fmt.Errorf("%w: expected files/<id>", ErrInvalidLocator)
		}
		return FileLocator{Kind: LocatorByDatabaseRef, Value: id}, nil
	}
	return FileLocator{}, fmt.Errorf("%w: unknown locator kind %q", ErrInvalidLocator, by)
}

func (l FileLocator) String() string {
	if l.Kind == LocatorByDatabaseRef {
		return databaseRefPrefix + l.Value
	}
	return string(l.Kind) + ":" + l.Value
}
