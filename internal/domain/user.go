// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxNicknameLen = 36

var (
	ErrNicknameTooLong = errors.New("nickname too long")
	ErrNicknameEmpty   = errors.New("nickname empty")
)

// UserID identifies a person across connections; subscriptions are keyed
// by it and the websocket adapter reuses it as the client token.
type UserID string

func ValidateNickname(nickname string) error {
	if len(nickname) == 0 {
		return ErrNicknameEmpty
	}
	if len(nickname) > MaxNicknameLen {
		return ErrNicknameTooLong
	}
	return nil
}
