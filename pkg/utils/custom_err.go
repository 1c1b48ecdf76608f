package utils

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	ErrCardNotFound = errors.New("gift card not found")
	ErrCardInactive = errors.New("gift card is inactive")
	ErrInvalidPin   = errors.New("invalid card pin")

	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayDeclined    = errors.New("payment gateway declined")

	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrStateConflict    = errors.New("payment state transition conflict")

	ErrSettlementFailed = errors.New("settlement failed")

	ErrDatabaseError = errors.New("database error")
)
