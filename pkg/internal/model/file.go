// Package model 定义文件存储的数据库模型.
package model

import (
	"time"

	"gorm.io/gorm"
)

// MaxNameLength 文件名最大长度（按字符计），超出部分被截断.
const MaxNameLength = 200

// File 一个已上传文件的元数据.
// 同一文档下的文件按 Order 排列；同一逻辑文件的多个版本共享 VersionID，
// 其中恰好一个的 LatestVersion 为 true.
type File struct {
	ID            string  `gorm:"primaryKey;size:26"                       json:"id"`
	Name          string  `gorm:"size:200"                                 json:"name"`
	MimeType      string  `gorm:"size:255"                                 json:"mime_type"`
	Size          int64   `json:"size"`
	UserID        string  `gorm:"size:64;index;index:idx_user_checksum"    json:"user_id"`
	DocumentID    *string `gorm:"size:64;index"                            json:"document_id,omitempty"`
	Order         int     `gorm:"column:file_order"                        json:"order"`
	Version       int     `json:"version"`
	VersionID     *string `gorm:"size:36;index"                            json:"version_id,omitempty"`
	LatestVersion bool    `gorm:"index"                                    json:"latest_version"`
	// Checksum 明文内容的 xxhash64（十六进制）
	Checksum string `gorm:"size:16;index:idx_user_checksum" json:"checksum"`
	// Content OCR 等后处理提取出的文本
	Content   string         `gorm:"type:text"                     json:"content,omitempty"`
	Language  *string        `gorm:"size:16"                       json:"language,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index"                         json:"deleted_at,omitempty"`
}

// HasDocument 文件是否属于某个文档.
func (f *File) HasDocument() bool {
	return f.DocumentID != nil && *f.DocumentID != ""
}

// SameDocument 判断两个文件是否属于同一文档（都不属于任何文档时返回 false）.
func (f *File) SameDocument(documentID *string) bool {
	return f.HasDocument() && documentID != nil && *f.DocumentID == *documentID
}

// User 用户的密钥与存储用量.
type User struct {
	ID             string    `gorm:"primaryKey;size:64" json:"id"`
	PrivateKey     string    `gorm:"size:64"            json:"-"`
	StorageCurrent int64     `gorm:"not null;default:0" json:"storage_current"`
	StorageQuota   int64     `gorm:"not null;default:0" json:"storage_quota"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Models 需要迁移的全部模型.
func Models() []any {
	return []any{&File{}, &User{}}
}
