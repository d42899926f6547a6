// Package face 人脸唯一性校验与人脸库索引
package face

import (
	"context"
	"errors"
	"fmt"
)

// Indexer 人脸服务抽象。
// SearchSimilar 用于注册前的查重，IndexFace 在激活时把人脸写入人脸库，两者互不依赖。
type Indexer interface {
	IndexFace(ctx context.Context, imageURL, subjectID string) (string, error)
	SearchSimilar(ctx context.Context, imageURL string) (Match, error)
}

// Match 查重结果
type Match struct {
	Duplicate  bool
	FaceID     string  // 命中的人脸ID
	SubjectID  string  // 命中人脸的外部ID（档案ID）
	Similarity float32 // 相似度百分比
}

var (
	// ErrImageFetch 图片下载失败
	ErrImageFetch = errors.New("face: 图片下载失败")
	// ErrImageTooLarge 归一化后图片仍超过大小上限
	ErrImageTooLarge = errors.New("face: 图片过大")
	// ErrNoFace 图片中没有检测到人脸
	ErrNoFace = errors.New("face: 未检测到人脸")
)

// VendorError 人脸服务调用失败
type VendorError struct {
	Op  string
	Err error
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("face: %s 调用失败: %v", e.Op, e.Err)
}

func (e *VendorError) Unwrap() error { return e.Err }
