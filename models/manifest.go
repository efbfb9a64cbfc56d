package models

// EngineManifest is the signed release description published next to the
// engine binary. It pins the version and the binary's digest.
type EngineManifest struct {
	Issuer    string `json:"iss,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	Version   string `json:"version"`
	Binary    string `json:"binary"` // artifact file name, e.g. "ffmpeg"
	SHA256    string `json:"sha256"` // hex digest of the binary artifact
}
