package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// ProfileStatus 注册/激活生命周期状态
type ProfileStatus string

const (
	StatusStaging          ProfileStatus = "STAGING"           // 已提交注册，等待支付
	StatusPaid             ProfileStatus = "PAID"              // 已支付，等待激活任务
	StatusGenerating       ProfileStatus = "GENERATING"        // 激活流程执行中，候选集在此阶段发布
	StatusActive           ProfileStatus = "ACTIVE"            // 终态：激活成功
	StatusActivationFailed ProfileStatus = "ACTIVATION_FAILED" // 终态：激活失败，等待人工处理

	// StatusBanned 不落库，只出现在 Lifecycle() 视图中
	StatusBanned ProfileStatus = "BANNED"
)

// transitions 允许的自动状态迁移。
// ACTIVATION_FAILED -> PAID 不在表中，只能通过 ProfileRepository.ResetFailed 由运维执行。
var transitions = map[ProfileStatus][]ProfileStatus{
	StatusStaging:    {StatusPaid, StatusActivationFailed},
	StatusPaid:       {StatusGenerating, StatusActivationFailed},
	StatusGenerating: {StatusActive, StatusActivationFailed},
}

// CanTransition 判断 from -> to 是否为合法迁移
func CanTransition(from, to ProfileStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal 终态不会被自动推进
func (s ProfileStatus) IsTerminal() bool {
	return s == StatusActive || s == StatusActivationFailed
}

// RegMeta 状态机簿记信息，每次迁移整体替换
type RegMeta struct {
	Step      string    `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	JobID     string    `json:"jobId,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Profile 注册用户档案
// 暂存字段（TmpFaceURL/StyleID/Gender）在激活提交时清空
// 候选集（AvatarURLs/NicknameOptions）在最终值提交时清空
// Banned 为真时账号永久封禁，与 Status 正交
type Profile struct {
	ID              string                      `gorm:"type:varchar(36);primaryKey;comment:档案ID"`
	Email           string                      `gorm:"type:varchar(128);index;comment:邮箱"`
	Status          ProfileStatus               `gorm:"type:varchar(32);not null;index;default:'STAGING';comment:注册状态"`
	CitizenID       *int64                      `gorm:"uniqueIndex;comment:公民编号"`
	TmpFaceURL      *string                     `gorm:"type:varchar(512);comment:待处理人脸图片"`
	StyleID         *string                     `gorm:"type:varchar(64);comment:头像风格"`
	Gender          *string                     `gorm:"type:varchar(16);comment:性别"`
	AvatarURL       *string                     `gorm:"type:varchar(512);comment:最终头像"`
	AvatarURLs      datatypes.JSONSlice[string] `gorm:"comment:头像候选集"`
	Nickname        *string                     `gorm:"type:varchar(64);uniqueIndex;comment:最终昵称"`
	NicknameOptions datatypes.JSONSlice[string] `gorm:"comment:昵称候选集"`
	RekFaceID       *string                     `gorm:"type:varchar(128);comment:人脸库ID"`
	Warnings        int                         `gorm:"not null;default:0;comment:警告次数"`
	Banned          bool                        `gorm:"not null;default:false;comment:是否封禁"`
	RegRetryCount   int                         `gorm:"not null;default:0;comment:激活重试次数"`
	RegMeta         datatypes.JSONType[RegMeta] `gorm:"comment:状态机簿记"`
	CreatedAt       time.Time                   `gorm:"comment:创建时间"`
	UpdatedAt       time.Time                   `gorm:"comment:更新时间"`
}

func (Profile) TableName() string { return "profile" }

// Lifecycle 统一的状态视图：封禁优先于存储的状态
func (p *Profile) Lifecycle() ProfileStatus {
	if p.Banned {
		return StatusBanned
	}
	return p.Status
}

// HasStagingInputs 激活所需的暂存字段是否齐全
func (p *Profile) HasStagingInputs() bool {
	return nonEmpty(p.TmpFaceURL) && nonEmpty(p.StyleID) && nonEmpty(p.Gender)
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

// Deref 取指针字符串的值
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
