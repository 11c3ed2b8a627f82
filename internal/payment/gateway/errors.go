package gateway

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMissingTxnRef    = errors.New("missing_txn_ref")
	ErrInvalidAmount    = errors.New("invalid_amount")
)
