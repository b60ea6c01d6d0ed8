package bundle

import "errors"

// Validation error kinds, per spec §4.1/§7. Sentinels rather than a
// custom error type, matching the teacher's var ErrNoNewBlocks style
// generalized to several distinct kinds compared with errors.Is.
var (
	ErrTooManyTransactions     = errors.New("bundle: transaction count out of range [1,3]")
	ErrGasLimitExceeded        = errors.New("bundle: total gas exceeds 25,000,000")
	ErrUnsupportedFieldSet     = errors.New("bundle: unsupported reverting/dropping/refund field set")
	ErrRevertingHashesMismatch = errors.New("bundle: revertingTxHashes must equal the set of the bundle's own transaction hashes")
	ErrWrongChainID            = errors.New("bundle: transaction chain id does not match configured chain id")
	ErrDecoding                = errors.New("bundle: decoding error")
	ErrEntryPointNotSupported  = errors.New("bundle: entry point not in configured whitelist")
)
