package services

import (
	"errors"

	"rps-arena/game"
)

// Rejections reported to the originating session only.
var (
	ErrNotAuthenticated = errors.New("authenticate first")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrInvalidMove      = errors.New("choice must be rock, paper, or scissors")
	ErrInvalidInput     = errors.New("match id and tx hash required")
	ErrNotPlaying       = errors.New("match not in playing state")
	ErrTooEarly         = errors.New("wait for the round start delay before throwing")
	ErrEmptyMessage     = errors.New("chat body required")
	ErrMessageTooLong   = errors.New("chat body too long")

	ErrNotParticipant   = game.ErrNotParticipant
	ErrRoundClosed      = game.ErrRoundClosed
	ErrAlreadySubmitted = game.ErrAlreadySubmitted
	ErrAlreadySent      = game.ErrAlreadySent
)

// Coordination conflicts.
var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrMatchNotOpen    = errors.New("match not in waiting_deposits/playing")
	ErrDepositRecorded = errors.New("deposit already recorded")
)
