package domain

import "errors"

// Taxonomía de errores compartida por store, bus y capa HTTP.
// Se envuelven con fmt.Errorf("%w: ...") y se comparan con errors.Is.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyDeleted    = errors.New("already deleted")
	ErrMessageDeleted    = errors.New("message deleted")
	ErrInvalidCursor     = errors.New("invalid cursor")
	ErrRateLimited       = errors.New("rate limited")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// ErrorKind devuelve el nombre estable del tipo de error para respuestas JSON.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyDeleted):
		return "already_deleted"
	case errors.Is(err, ErrMessageDeleted):
		return "deleted"
	case errors.Is(err, ErrInvalidCursor):
		return "invalid_cursor"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBrokerUnavailable):
		return "broker_unavailable"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// PublicMessage es el texto que puede ver un cliente. Las fallas de
// infraestructura llevan host, usuario o detalle del driver: salen con un texto
// fijo por tipo y el error completo queda solo en el log.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBrokerUnavailable):
		return "broker unavailable"
	case errors.Is(err, ErrStoreUnavailable):
		return "store unavailable"
	case ErrorKind(err) == "internal":
		return "internal server error"
	default:
		return err.Error()
	}
}
