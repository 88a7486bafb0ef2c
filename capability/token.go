// Copyright 2025 ShieldForce AI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package capability implements the short-lived bearer credential the broker
// mints for each allowed invocation. A token enumerates the tools, data
// scopes and budgets one agent may use for the next five minutes; it is
// immutable after mint and expiry is its only termination.
package capability

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shieldforce/platform/shared/types"
)

const (
	// Issuer and Audience are fixed protocol constants.
	Issuer   = "broker"
	Audience = "agent"

	// DefaultTTL is the capability token lifetime.
	DefaultTTL = 300 * time.Second
)

// Verification sub-reasons, surfaced in logs under the single external
// error kind capability_invalid.
const (
	ReasonExpired       = "expired"
	ReasonTampered      = "tampered"
	ReasonWrongAudience = "wrong_audience"
	ReasonWrongIssuer   = "wrong_issuer"
)

// VerifyError is the single error kind returned by Verify.
type VerifyError struct {
	Reason string
}

func (e *VerifyError) Error() string {
	return "capability_invalid: " + e.Reason
}

// PaymentPolicy is attached as a token claim when the invocation is
// classified as a payment intent.
type PaymentPolicy struct {
	MaxAmount       float64 `json:"max_amount"`
	PreapprovedOnly bool    `json:"preapproved_only"`
}

// Claims is the capability token payload.
type Claims struct {
	Tools         []string       `json:"tools"`
	Scopes        []string       `json:"scopes"`
	Budgets       types.Budgets  `json:"budgets"`
	PaymentPolicy *PaymentPolicy `json:"payment_policy,omitempty"`
	jwt.RegisteredClaims
}

// HasTool reports whether the named tool was granted.
func (c *Claims) HasTool(tool string) bool {
	for _, t := range c.Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Service mints and verifies capability tokens with a process-wide HS256
// secret. The signing algorithm is fixed at construction; verification
// rejects any token whose header names a different one.
type Service struct {
	secret []byte

	// TTL is exported so tests can mint short- or already-expired tokens.
	TTL time.Duration
}

// NewService creates a token service around the shared symmetric secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), TTL: DefaultTTL}
}

// Mint issues a signed capability token for the agent.
func (s *Service) Mint(agentID string, tools, scopes []string, budgets types.Budgets, policy *PaymentPolicy) (string, error) {
	now := time.Now()
	claims := Claims{
		Tools:         tools,
		Scopes:        scopes,
		Budgets:       budgets,
		PaymentPolicy: policy,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the token in protocol order: signature and algorithm first,
// then issuer, audience, and expiry. The subject check against the claimed
// agent identity belongs to the agent adapter, which sees both values.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return nil, &VerifyError{Reason: ReasonTampered}
	}

	if claims.Issuer != Issuer {
		return nil, &VerifyError{Reason: ReasonWrongIssuer}
	}

	audOK := false
	for _, aud := range claims.Audience {
		if aud == Audience {
			audOK = true
		}
	}
	if !audOK {
		return nil, &VerifyError{Reason: ReasonWrongAudience}
	}

	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return nil, &VerifyError{Reason: ReasonExpired}
	}

	return claims, nil
}
