package errs

const (
	ServerInternalError = 500
	ArgsError           = 1001
	TokenInvalidError   = 1002

	SessionNotFoundError = 1101
	SessionNotReadyError = 1102
	SyncRunningError     = 1103

	ProviderTimeoutError = 1201
	ProviderError        = 1202
	SendFailedError      = 1203

	StorageError = 1301
	UploadError  = 1302
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrTokenInvalid   = NewCodeError(TokenInvalidError, "TokenInvalid")

	ErrSessionNotFound = NewCodeError(SessionNotFoundError, "SessionNotFound")
	ErrSessionNotReady = NewCodeError(SessionNotReadyError, "SessionNotReady")
	ErrSyncRunning     = NewCodeError(SyncRunningError, "SyncRunning")

	ErrProviderTimeout = NewCodeError(ProviderTimeoutError, "ProviderTimeout")
	ErrProvider        = NewCodeError(ProviderError, "ProviderError")
	ErrSendFailed      = NewCodeError(SendFailedError, "SendFailed")

	ErrStorage = NewCodeError(StorageError, "StorageError")
	ErrUpload  = NewCodeError(UploadError, "UploadError")
)
