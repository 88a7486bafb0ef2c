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

package broker

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OTP verification reason tags.
const (
	OTPVerified            = "verified"
	OTPInvalidChallenge    = "invalid_challenge_id"
	OTPExpired             = "expired"
	OTPMaxAttemptsExceeded = "max_attempts_exceeded"
	OTPInvalidCode         = "invalid_code"
)

type challenge struct {
	code      string
	createdAt time.Time
	expiresAt time.Time
	attempts  int
	verified  bool
}

// ChallengeStore is the in-memory one-time-code store used by the payment
// flow. Records are deleted on expiry, exhaustion, or successful
// verification.
type ChallengeStore struct {
	mu          sync.Mutex
	challenges  map[string]*challenge
	expiry      time.Duration
	maxAttempts int
	codeLength  int

	// now is swapped in tests to exercise expiry.
	now func() time.Time
}

// NewChallengeStore builds a store from the OTP settings.
func NewChallengeStore(settings OTPSettings) *ChallengeStore {
	return &ChallengeStore{
		challenges:  make(map[string]*challenge),
		expiry:      time.Duration(settings.ExpirySeconds) * time.Second,
		maxAttempts: settings.MaxAttempts,
		codeLength:  settings.CodeLength,
		now:         time.Now,
	}
}

// Issue creates a new challenge and returns its identifier and code.
func (s *ChallengeStore) Issue() (string, string) {
	id := uuid.NewString()
	code := generateCode(s.codeLength)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.challenges[id] = &challenge{
		code:      code,
		createdAt: now,
		expiresAt: now.Add(s.expiry),
	}
	return id, code
}

// Verify checks the provided code against the challenge, enforcing expiry
// and the attempt ceiling. Returns the outcome and a reason tag.
func (s *ChallengeStore) Verify(id, code string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return false, OTPInvalidChallenge
	}

	if s.now().After(c.expiresAt) {
		delete(s.challenges, id)
		return false, OTPExpired
	}

	if c.attempts >= s.maxAttempts {
		delete(s.challenges, id)
		return false, OTPMaxAttemptsExceeded
	}
	c.attempts++

	if c.code != code {
		if c.attempts >= s.maxAttempts {
			delete(s.challenges, id)
			return false, OTPMaxAttemptsExceeded
		}
		return false, OTPInvalidCode
	}

	c.verified = true
	delete(s.challenges, id)
	return true, OTPVerified
}

// CleanupExpired drops every expired challenge. Called opportunistically
// from the send path.
func (s *ChallengeStore) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, c := range s.challenges {
		if now.After(c.expiresAt) {
			delete(s.challenges, id)
		}
	}
}

func generateCode(length int) string {
	if length <= 0 {
		length = 6
	}
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand failing is not survivable for an auth code
			panic(err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code)
}
