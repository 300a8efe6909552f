package biz

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source 列表数据来源
type Source string

const (
	SourceMetadata Source = "metadata" // 以元数据库为主，逐个 HEAD 校验
	SourceStorage  Source = "storage"  // 以对象存储 LIST 为主
)

// RawListParams 未解析的查询参数
type RawListParams struct {
	Page     string
	PerPage  string
	Cursor   string
	UseCache string
	Source   string
}

// ListParams 解析后的分页参数
type ListParams struct {
	Page     int
	PerPage  int
	Cursor   *Cursor // 非空为游标模式
	UseCache bool
	Source   Source
}

// Skip offset 模式下跳过的条数
func (p *ListParams) Skip() int64 {
	return int64(p.Page-1) * int64(p.PerPage)
}

// CursorKind 游标类型
type CursorKind string

const (
	CursorBoundary CursorKind = "b" // lastModified + id 边界
	CursorStore    CursorKind = "s" // 对象存储原生 continuation token
)

// Cursor 不透明的翻页游标
type Cursor struct {
	Kind         CursorKind `json:"k"`
	LastModified time.Time  `json:"t,omitempty"`
	ID           string     `json:"i,omitempty"`
	Token        string     `json:"s,omitempty"`
}

// Encode 编码为 URL 安全字符串
func (c *Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Boundary 游标对应的排序位置
func (c *Cursor) Boundary() *Boundary {
	return &Boundary{LastModified: c.LastModified, ID: c.ID}
}

// DecodeCursor 解析游标，格式错误返回 ErrInvalidCursor
func DecodeCursor(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	switch c.Kind {
	case CursorBoundary:
		if c.LastModified.IsZero() {
			return nil, fmt.Errorf("%w: missing boundary", ErrInvalidCursor)
		}
	case CursorStore:
		if c.Token == "" {
			return nil, fmt.Errorf("%w: missing token", ErrInvalidCursor)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidCursor, c.Kind)
	}
	return &c, nil
}

// BoundaryCursor 用记录的排序位置生成游标
func BoundaryCursor(rec *FileRecord) *Cursor {
	return &Cursor{Kind: CursorBoundary, LastModified: rec.LastModified.UTC(), ID: rec.ID}
}

// StoreCursor 包装对象存储 token
func StoreCursor(token string) *Cursor {
	return &Cursor{Kind: CursorStore, Token: token}
}

// ParseListParams 在访问任何存储之前校验参数
func ParseListParams(raw RawListParams, maxPerPage, defaultPerPage int) (*ListParams, error) {
	p := &ListParams{
		Page:     1,
		PerPage:  defaultPerPage,
		UseCache: true,
		Source:   SourceMetadata,
	}

	if raw.Page != "" {
		page, err := strconv.Atoi(strings.TrimSpace(raw.Page))
		if err != nil || page < 1 {
			return nil, fmt.Errorf("%w: page must be a positive integer", ErrInvalidPagination)
		}
		p.Page = page
	}

	if raw.PerPage != "" {
		perPage, err := strconv.Atoi(strings.TrimSpace(raw.PerPage))
		if err != nil || perPage < 1 || perPage > maxPerPage {
			return nil, fmt.Errorf("%w: per_page must be an integer between 1 and %d", ErrInvalidPagination, maxPerPage)
		}
		p.PerPage = perPage
	}

	if raw.UseCache != "" {
		useCache, err := strconv.ParseBool(raw.UseCache)
		if err != nil {
			return nil, fmt.Errorf("%w: use_cache must be a boolean", ErrInvalidPagination)
		}
		p.UseCache = useCache
	}

	switch Source(strings.ToLower(raw.Source)) {
	case "", SourceMetadata:
		p.Source = SourceMetadata
	case SourceStorage:
		p.Source = SourceStorage
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidPagination, raw.Source)
	}

	if raw.Cursor != "" {
		c, err := DecodeCursor(raw.Cursor)
		if err != nil {
			return nil, err
		}
		want := CursorBoundary
		if p.Source == SourceStorage {
			want = CursorStore
		}
		if c.Kind != want {
			return nil, fmt.Errorf("%w: cursor does not match source", ErrInvalidCursor)
		}
		p.Cursor = c
	}

	return p, nil
}

// TotalPages ceil(total / perPage)
func TotalPages(total int64, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}

// SortRecords lastModified desc, id desc, key asc
func SortRecords(recs []*FileRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		if a.ID != b.ID {
			return a.ID > b.ID
		}
		return a.Key < b.Key
	})
}

// dedupeByKey 保留每个 key 第一次出现的记录
func dedupeByKey(recs []*FileRecord) []*FileRecord {
	seen := make(map[string]struct{}, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
	}
	return out
}
