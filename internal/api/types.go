package api

import "time"

// RedeemRequest is the JSON body for POST /auth/redeem.
type RedeemRequest struct {
	Code string `json:"code"`
}

// RedeemResponse is returned on successful redemption.
type RedeemResponse struct {
	Token       string `json:"token"`
	TenantID    int64  `json:"tenant_id"`
	DisplayName string `json:"display_name"`
}

// CreateBotRequest is the JSON body for POST /bots.
type CreateBotRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// BotResponse describes one bot.
type BotResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Language      string     `json:"language"`
	Status        string     `json:"status"`
	Running       bool       `json:"running"`
	ArchiveDigest string     `json:"archive_digest,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	LastStoppedAt *time.Time `json:"last_stopped_at,omitempty"`
}

// UploadResponse is returned after an archive upload.
type UploadResponse struct {
	Digest string `json:"digest"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
