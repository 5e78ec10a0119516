package app

import (
	"bookkeeper/internal/ai"
	"bookkeeper/internal/core"
)

// UserSession is returned on successful authentication.
type UserSession struct {
	UserID      int       `json:"user_id"`
	Username    string    `json:"username"`
	Role        core.Role `json:"role"`
	CompanyID   int       `json:"company_id"`
	CompanyCode string    `json:"company_code"`
}

func sessionFor(u *core.User) *UserSession {
	return &UserSession{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		CompanyID:   u.CompanyID,
		CompanyCode: u.CompanyCode,
	}
}

// ScanResult is returned by ScanReceipt: the saved draft and what the model read.
type ScanResult struct {
	Receipt *core.Receipt    `json:"receipt"`
	Draft   *ai.ReceiptDraft `json:"draft"`
}
