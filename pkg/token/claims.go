// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload. Subject carries the user id,
// Schema the partition the token was minted against. OrigIat is the
// creation instant of the refresh token that minted the pair; on a
// fresh signin it equals IssuedAt.
type Claims struct {
	Email    string `json:"email"`
	Endpoint string `json:"endpoint"`
	Schema   string `json:"schema"`
	OrigIat  int64  `json:"orig_iat"`
	jwt.RegisteredClaims
}
